package keys

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leeluca/seon-sub000/internal/config"
)

// TokenType is the closed set of token kinds the service issues. There are
// exactly three; anything else is rejected at lookup.
type TokenType string

const (
	TypeAccess   TokenType = "access"
	TypeRefresh  TokenType = "refresh"
	TypeDBAccess TokenType = "db_access"
)

// Cookie names, one per token type.
const (
	CookieAccess   = "access_token"
	CookieRefresh  = "refresh_token"
	CookieDBAccess = "db_access_token"
)

// Definition is the per-type signing configuration. SignKey and VerifyKey
// are whatever the signing method expects: *rsa.PrivateKey/*rsa.PublicKey
// for RS256, []byte for HS256.
type Definition struct {
	Type       TokenType
	Method     jwt.SigningMethod
	SignKey    any
	VerifyKey  any
	Audience   string
	Role       string
	KeyID      string // empty for symmetric types
	ExpiresIn  time.Duration
	CookieName string
}

// Registry maps each token type to its definition. Pure configuration
// assembly; rebuilt whenever the key material changes.
type Registry struct {
	defs map[TokenType]Definition
}

func NewRegistry(km *Material, cfg *config.Config) *Registry {
	return &Registry{defs: map[TokenType]Definition{
		TypeAccess: {
			Type:       TypeAccess,
			Method:     jwt.SigningMethodRS256,
			SignKey:    km.PrivateKey,
			VerifyKey:  km.PublicKey,
			Audience:   "seon",
			Role:       "authenticated",
			KeyID:      km.KeyID,
			ExpiresIn:  time.Duration(cfg.AccessExpiresIn) * time.Second,
			CookieName: CookieAccess,
		},
		TypeRefresh: {
			Type:       TypeRefresh,
			Method:     jwt.SigningMethodHS256,
			SignKey:    km.RefreshKey,
			VerifyKey:  km.RefreshKey,
			Audience:   "seon",
			Role:       "refresh",
			ExpiresIn:  time.Duration(cfg.RefreshExpiresIn) * time.Second,
			CookieName: CookieRefresh,
		},
		TypeDBAccess: {
			Type:       TypeDBAccess,
			Method:     jwt.SigningMethodHS256,
			SignKey:    km.DBAccessKey,
			VerifyKey:  km.DBAccessKey,
			Audience:   "authenticated",
			Role:       "authenticated",
			ExpiresIn:  time.Duration(cfg.DBAccessExpiresIn) * time.Second,
			CookieName: CookieDBAccess,
		},
	}}
}

func (r *Registry) Lookup(t TokenType) (Definition, error) {
	def, ok := r.defs[t]
	if !ok {
		return Definition{}, fmt.Errorf("unknown token type %q", t)
	}
	return def, nil
}
