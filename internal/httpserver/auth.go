package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/middleware"
	"github.com/leeluca/seon-sub000/internal/repo"
	"github.com/leeluca/seon-sub000/internal/service"
	"github.com/leeluca/seon-sub000/internal/token"
	"github.com/leeluca/seon-sub000/pkg/logging"
)

// AuthHTTP exposes the auth flows over HTTP. All responses carry a "result"
// field; authentication failures are terse and uniform so they never leak
// which credential was wrong.
type AuthHTTP struct {
	Svc    *service.AuthService
	Tokens *token.Service
}

func (h *AuthHTTP) SignIn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signin")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("signin_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.SignIn(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) || errors.Is(err, service.ErrValidation) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		l.Error("signin_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.setSessionCookies(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"expiresAt": expiresAtMillis(res.AccessPayload.ExpiresAt),
		"user":      res.User,
	})
}

func (h *AuthHTTP) SignUp(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req struct {
		Email      string `json:"email"`
		Name       string `json:"name"`
		Password   string `json:"password"`
		ExternalID string `json:"externalId"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.SignUp(ctx, service.SignUpParams{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		ExternalID: req.ExternalID,
		RemoteIP:   c.RealIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidExternalID), errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid signup request")
		case errors.Is(err, repo.ErrDuplicateUser):
			return echo.NewHTTPError(http.StatusConflict, "user already exists")
		default:
			l.Error("signup_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}
	}

	h.setSessionCookies(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"expiresAt": expiresAtMillis(res.AccessPayload.ExpiresAt),
		"user":      res.User,
	})
}

// Status reports refresh-session validity without rotating anything.
func (h *AuthHTTP) Status(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_status")

	raw := cookieValue(c, keys.CookieRefresh)
	expiresAt, ok, err := h.Svc.Status(ctx, raw)
	if err != nil {
		l.Error("status_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"result": false})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"expiresAt": expiresAtMillis(expiresAt),
	})
}

// Refresh rotates the session: a new access token is minted and the refresh
// token presented in the cookie is replaced, staying valid only for the
// rotation grace window.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	res, err := h.Svc.Refresh(ctx, cookieValue(c, keys.CookieRefresh))
	if err != nil {
		if errors.Is(err, repo.ErrRefreshTokenInvalid) {
			h.clearSessionCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.setSessionCookies(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"expiresAt": expiresAtMillis(res.AccessPayload.ExpiresAt),
	})
}

func (h *AuthHTTP) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signout")

	if err := h.Svc.SignOut(ctx, cookieValue(c, keys.CookieRefresh)); err != nil {
		h.clearSessionCookies(c)
		l.Error("signout_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.clearSessionCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"result": true})
}

// SyncCredentials hands the sync collaborator an access token. Requires an
// authenticated request.
func (h *AuthHTTP) SyncCredentials(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_sync_credentials")

	signed, payload, syncURL, err := h.Svc.SyncCredentials(middleware.UserID(c))
	if err != nil {
		l.Error("sync_credentials_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"token":     signed,
		"expiresAt": expiresAtMillis(payload.ExpiresAt),
		"syncUrl":   syncURL,
	})
}

// DBCredentials mints a short-lived db_access token for the data layer.
func (h *AuthHTTP) DBCredentials(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_db_credentials")

	signed, payload, err := h.Svc.DBCredentials(middleware.UserID(c))
	if err != nil {
		l.Error("db_credentials_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	attrs, err := h.Tokens.CookieAttributes(keys.TypeDBAccess)
	if err == nil {
		c.SetCookie(attrs.Cookie(signed))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"result":    true,
		"token":     signed,
		"expiresAt": expiresAtMillis(payload.ExpiresAt),
	})
}

// JWKS serves the RSA public key set for third-party verification.
func (h *AuthHTTP) JWKS(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Tokens.JWKS())
}

func (h *AuthHTTP) setSessionCookies(c echo.Context, res *service.SessionResult) {
	if attrs, err := h.Tokens.CookieAttributes(keys.TypeAccess); err == nil {
		c.SetCookie(attrs.Cookie(res.AccessToken))
	}
	if attrs, err := h.Tokens.CookieAttributes(keys.TypeRefresh); err == nil {
		c.SetCookie(attrs.Cookie(res.RefreshToken))
	}
}

func (h *AuthHTTP) clearSessionCookies(c echo.Context) {
	for _, t := range []keys.TokenType{keys.TypeAccess, keys.TypeRefresh, keys.TypeDBAccess} {
		if attrs, err := h.Tokens.CookieAttributes(t); err == nil {
			c.SetCookie(attrs.Expired())
		}
	}
}

func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// expiresAtMillis is the epoch-milliseconds shape the client stores.
func expiresAtMillis(t time.Time) int64 {
	return t.UnixMilli()
}
