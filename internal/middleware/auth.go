package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/repo"
	"github.com/leeluca/seon-sub000/internal/service"
	"github.com/leeluca/seon-sub000/internal/token"
)

// Context keys set for authenticated requests.
const (
	CtxUserID  = "user_id"
	CtxPayload = "token_payload"
)

// Auth guards routes with the access cookie. When the access token is
// expired or missing but a valid refresh token is presented, the session is
// refreshed in place: new cookies are set and the request proceeds.
type Auth struct {
	Tokens *token.Service
	Svc    *service.AuthService
}

func NewAuth(tokens *token.Service, svc *service.AuthService) *Auth {
	return &Auth{Tokens: tokens, Svc: svc}
}

func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if cookie, err := c.Cookie(keys.CookieAccess); err == nil && cookie.Value != "" {
			if payload := m.Tokens.Verify(cookie.Value, keys.TypeAccess); payload != nil {
				setUserContext(c, payload)
				return next(c)
			}
		}

		refreshCookie, err := c.Cookie(keys.CookieRefresh)
		if err != nil || refreshCookie.Value == "" {
			m.clearCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}

		res, err := m.Svc.Refresh(c.Request().Context(), refreshCookie.Value)
		if err != nil {
			// Only a rejected token tears the session down client-side; a
			// storage failure must leave the still-valid cookies alone.
			if errors.Is(err, repo.ErrRefreshTokenInvalid) {
				m.clearCookies(c)
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}

		m.setCookie(c, keys.TypeAccess, res.AccessToken)
		m.setCookie(c, keys.TypeRefresh, res.RefreshToken)
		setUserContext(c, res.AccessPayload)
		return next(c)
	}
}

func (m *Auth) setCookie(c echo.Context, t keys.TokenType, value string) {
	attrs, err := m.Tokens.CookieAttributes(t)
	if err != nil {
		return
	}
	c.SetCookie(attrs.Cookie(value))
}

func (m *Auth) clearCookies(c echo.Context) {
	for _, t := range []keys.TokenType{keys.TypeAccess, keys.TypeRefresh, keys.TypeDBAccess} {
		if attrs, err := m.Tokens.CookieAttributes(t); err == nil {
			c.SetCookie(attrs.Expired())
		}
	}
}

func setUserContext(c echo.Context, payload *token.Payload) {
	c.Set(CtxUserID, payload.Subject)
	c.Set(CtxPayload, payload)
}

// UserID returns the authenticated user id set by RequireAuth, or "".
func UserID(c echo.Context) string {
	if v, ok := c.Get(CtxUserID).(string); ok {
		return v
	}
	return ""
}
