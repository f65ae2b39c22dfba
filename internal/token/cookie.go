package token

import (
	"net/http"
	"time"

	"github.com/leeluca/seon-sub000/internal/keys"
)

// CookieAttributes describes how a token type travels to the browser. All
// auth cookies are HttpOnly, Secure, SameSite=Strict on Path=/.
type CookieAttributes struct {
	Name      string
	MaxAge    time.Duration
	ExpiresAt time.Time
	Domain    string
}

// CookieAttributes returns the transport attributes for a token type,
// anchored at the current clock.
func (s *Service) CookieAttributes(t keys.TokenType) (CookieAttributes, error) {
	def, err := s.registry.Lookup(t)
	if err != nil {
		return CookieAttributes{}, err
	}
	return CookieAttributes{
		Name:      def.CookieName,
		MaxAge:    def.ExpiresIn,
		ExpiresAt: s.now().UTC().Add(def.ExpiresIn),
		Domain:    s.cookieDomain,
	}, nil
}

// Cookie builds the Set-Cookie value carrying the signed token.
func (a CookieAttributes) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     a.Name,
		Value:    value,
		Path:     "/",
		Domain:   a.Domain,
		Expires:  a.ExpiresAt,
		MaxAge:   int(a.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Expired builds the deletion cookie for the same attributes.
func (a CookieAttributes) Expired() *http.Cookie {
	return &http.Cookie{
		Name:     a.Name,
		Value:    "",
		Path:     "/",
		Domain:   a.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
