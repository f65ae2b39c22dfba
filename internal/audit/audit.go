package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

const defaultIndex = "auth-audit"

// Entry is one authentication outcome. Secrets, passwords and raw tokens
// never go in here.
type Entry struct {
	Action   string    `json:"action"`
	UserID   string    `json:"user_id,omitempty"`
	Email    string    `json:"email,omitempty"`
	RemoteIP string    `json:"remote_ip,omitempty"`
	Success  bool      `json:"success"`
	At       time.Time `json:"at"`
}

// Sink indexes auth outcomes into elasticsearch for operational search. A
// nil Sink records nothing; the service runs fine without an ES cluster.
type Sink struct {
	client *elasticsearch.Client
	index  string
}

func NewSink(url, user, pass string) (*Sink, error) {
	if url == "" {
		return nil, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  pass,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: create es client: %w", err)
	}
	return &Sink{client: client, index: defaultIndex}, nil
}

// Record indexes one entry. Best-effort: callers log the returned error and
// move on, an unreachable cluster must never fail an auth request.
func (s *Sink) Record(ctx context.Context, e Entry) error {
	if s == nil {
		return nil
	}
	e.At = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(data),
		s.client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("audit: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("audit: index: %s", res.Status())
	}
	return nil
}
