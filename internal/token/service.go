package token

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/leeluca/seon-sub000/internal/keys"
)

// Service signs and verifies tokens for the registered token types and owns
// the cookie attributes each type travels in.
type Service struct {
	registry *keys.Registry

	// cookieDomain is empty in development, otherwise the deployment host.
	cookieDomain string

	now func() time.Time
}

func NewService(registry *keys.Registry, originURL string) *Service {
	return &Service{
		registry:     registry,
		cookieDomain: cookieDomainFromOrigin(originURL),
		now:          time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sign builds and signs a token of the given type for userID.
func (s *Service) Sign(userID string, t keys.TokenType) (string, error) {
	tok, _, err := s.SignWithPayload(userID, t)
	return tok, err
}

// SignWithPayload signs a token and also returns its payload, so callers can
// report expiry without decoding the token a second time.
func (s *Service) SignWithPayload(userID string, t keys.TokenType) (string, *Payload, error) {
	def, err := s.registry.Lookup(t)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	claims := Claims{
		Role: def.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{def.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(def.ExpiresIn)),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(def.Method, claims)
	if def.KeyID != "" {
		tok.Header["kid"] = def.KeyID
	}
	signed, err := tok.SignedString(def.SignKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", t, err)
	}
	return signed, payloadFromClaims(&claims), nil
}

// Verify checks signature and standard claims against the type's key and
// algorithm. Any failure, malformed, expired or bad signature, yields nil:
// an unverifiable token is a normal "not authenticated" outcome, not an
// error.
func (s *Service) Verify(raw string, t keys.TokenType) *Payload {
	def, err := s.registry.Lookup(t)
	if err != nil {
		return nil
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != def.Method.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return def.VerifyKey, nil
	},
		jwt.WithAudience(def.Audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return nil
	}
	return payloadFromClaims(&claims)
}

func cookieDomainFromOrigin(originURL string) string {
	if originURL == "" {
		return ""
	}
	u, err := url.Parse(originURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" || host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost") {
		return ""
	}
	return host
}
