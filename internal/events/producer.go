package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types published on the auth topic.
const (
	UserSignedUp  = "user_signed_up"
	UserSignedIn  = "user_signed_in"
	UserSignedOut = "user_signed_out"
)

const publishTimeout = 5 * time.Second

// Event is the wire shape of an auth domain event. It never carries
// credentials or tokens.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	At     int64  `json:"at"`
}

// Producer publishes auth events to kafka. A nil Producer is valid and
// publishes nothing, so the service runs without brokers configured.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish sends one event, keyed by user id, bounded by its own timeout so a
// slow broker never holds an auth request.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	ev.At = time.Now().UTC().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
