package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the single claim shape shared by all three token types; audience
// and role differ per type.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Payload is the decoded, transient view of a token. It is never persisted.
type Payload struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Audience  string
	Role      string
	// TokenID is the token's jti. It is not checked against a deny-list
	// today; it exists so revocation-by-jti stays possible later.
	TokenID string
}

func payloadFromClaims(c *Claims) *Payload {
	p := &Payload{
		Subject: c.Subject,
		Role:    c.Role,
		TokenID: c.ID,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	if len(c.Audience) > 0 {
		p.Audience = c.Audience[0]
	}
	return p
}
