package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leeluca/seon-sub000/internal/audit"
	"github.com/leeluca/seon-sub000/internal/events"
	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/metrics"
	"github.com/leeluca/seon-sub000/internal/models"
	"github.com/leeluca/seon-sub000/internal/password"
	"github.com/leeluca/seon-sub000/internal/repo"
	"github.com/leeluca/seon-sub000/internal/token"
	"github.com/leeluca/seon-sub000/pkg/logging"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidExternalID = errors.New("invalid external id")
)

// AuthService composes the token service, the password hasher and the two
// repositories into the externally visible auth flows. It is the only
// component the HTTP layer talks to.
type AuthService struct {
	Users    *repo.UserRepo
	Store    *repo.RefreshTokenStore
	Tokens   *token.Service
	Producer *events.Producer
	Audit    *audit.Sink
	SyncURL  string
}

// SessionResult carries everything a successful sign-in/up/refresh hands
// back: both signed tokens with their payloads, and the user where the flow
// loaded one.
type SessionResult struct {
	AccessToken    string
	AccessPayload  *token.Payload
	RefreshToken   string
	RefreshPayload *token.Payload
	User           *models.User
}

// SignUpParams is the sign-up request body. ExternalID is the
// client-generated uuid the local-first sync layer already uses for this
// user.
type SignUpParams struct {
	Email      string
	Name       string
	Password   string
	ExternalID string
	RemoteIP   string
}

func (s *AuthService) SignIn(ctx context.Context, email, pw, remoteIP string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signin")

	if email == "" || pw == "" {
		metrics.SignIns.WithLabelValues(metrics.ResultDenied).Inc()
		return nil, ErrValidation
	}

	user, err := s.Users.FindByCredentials(ctx, email, pw)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) {
			metrics.SignIns.WithLabelValues(metrics.ResultDenied).Inc()
			s.record(ctx, audit.Entry{Action: "signin", Email: email, RemoteIP: remoteIP})
			return nil, err
		}
		metrics.SignIns.WithLabelValues(metrics.ResultError).Inc()
		l.Error("signin_failed", "error", err)
		return nil, err
	}

	res, err := s.openSession(ctx, user)
	if err != nil {
		metrics.SignIns.WithLabelValues(metrics.ResultError).Inc()
		l.Error("signin_failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	metrics.SignIns.WithLabelValues(metrics.ResultOK).Inc()
	s.record(ctx, audit.Entry{Action: "signin", UserID: user.ID, Email: email, RemoteIP: remoteIP, Success: true})
	s.publish(ctx, events.Event{Type: events.UserSignedIn, UserID: user.ID, Email: email})
	l.Info("signin_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) SignUp(ctx context.Context, p SignUpParams) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	if p.Email == "" || p.Password == "" {
		return nil, ErrValidation
	}
	if _, err := uuid.Parse(p.ExternalID); err != nil {
		return nil, ErrInvalidExternalID
	}

	hashed, err := password.Hash(p.Password)
	if err != nil {
		metrics.SignUps.WithLabelValues(metrics.ResultError).Inc()
		l.Error("signup_failed", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		ID:       p.ExternalID,
		Email:    p.Email,
		Name:     p.Name,
		Password: hashed,
		Status:   "active",
	}
	if err := s.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicateUser) {
			metrics.SignUps.WithLabelValues(metrics.ResultDenied).Inc()
			return nil, err
		}
		metrics.SignUps.WithLabelValues(metrics.ResultError).Inc()
		l.Error("signup_failed", "error", err)
		return nil, err
	}

	res, err := s.openSession(ctx, user)
	if err != nil {
		metrics.SignUps.WithLabelValues(metrics.ResultError).Inc()
		l.Error("signup_failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	metrics.SignUps.WithLabelValues(metrics.ResultOK).Inc()
	s.record(ctx, audit.Entry{Action: "signup", UserID: user.ID, Email: user.Email, RemoteIP: p.RemoteIP, Success: true})
	s.publish(ctx, events.Event{Type: events.UserSignedUp, UserID: user.ID, Email: user.Email})
	l.Info("signup_successful", "user_id", user.ID)
	return res, nil
}

// Refresh exchanges a valid refresh token for a new access token and a
// rotated refresh token. The presented token is revoked by the rotation but
// keeps validating inside the grace window, which is what lets two racing
// refresh calls both succeed.
func (s *AuthService) Refresh(ctx context.Context, oldRefresh string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	raw, payload, err := s.Store.Validate(ctx, oldRefresh)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		l.Error("refresh_failed", "error", err)
		return nil, err
	}
	if payload == nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultDenied).Inc()
		return nil, repo.ErrRefreshTokenInvalid
	}

	accessToken, accessPayload, err := s.Tokens.SignWithPayload(payload.Subject, keys.TypeAccess)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		l.Error("refresh_failed", "user_id", payload.Subject, "error", err)
		return nil, err
	}
	newRefresh, refreshPayload, err := s.Store.Issue(ctx, payload.Subject, raw)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		l.Error("refresh_failed", "user_id", payload.Subject, "error", err)
		return nil, err
	}

	metrics.Refreshes.WithLabelValues(metrics.ResultOK).Inc()
	return &SessionResult{
		AccessToken:    accessToken,
		AccessPayload:  accessPayload,
		RefreshToken:   newRefresh,
		RefreshPayload: refreshPayload,
	}, nil
}

// SignOut deletes the presented refresh token's row. Idempotent: signing out
// twice, or with no cookie at all, is not an error.
func (s *AuthService) SignOut(ctx context.Context, rawRefresh string) error {
	l := logging.FromContext(ctx).With("svc", "auth.signout")

	if rawRefresh == "" {
		return nil
	}
	payload := s.Tokens.Verify(rawRefresh, keys.TypeRefresh)
	if err := s.Store.Delete(ctx, rawRefresh); err != nil {
		l.Error("signout_failed", "error", err)
		return err
	}

	metrics.SignOuts.Inc()
	if payload != nil {
		s.record(ctx, audit.Entry{Action: "signout", UserID: payload.Subject, Success: true})
		s.publish(ctx, events.Event{Type: events.UserSignedOut, UserID: payload.Subject})
	}
	return nil
}

// Status reports whether the presented refresh token still backs a live
// session and, if so, when it expires. The error is non-nil only for
// storage failures, never for an invalid token.
func (s *AuthService) Status(ctx context.Context, rawRefresh string) (time.Time, bool, error) {
	_, payload, err := s.Store.Validate(ctx, rawRefresh)
	if err != nil {
		return time.Time{}, false, err
	}
	if payload == nil {
		return time.Time{}, false, nil
	}
	return payload.ExpiresAt, true, nil
}

// SyncCredentials mints an access token for the downstream sync collaborator
// and returns the sync endpoint it should be presented to.
func (s *AuthService) SyncCredentials(userID string) (string, *token.Payload, string, error) {
	signed, payload, err := s.Tokens.SignWithPayload(userID, keys.TypeAccess)
	if err != nil {
		return "", nil, "", err
	}
	return signed, payload, s.SyncURL, nil
}

// DBCredentials mints a short-lived db_access token. Stateless: nothing is
// written.
func (s *AuthService) DBCredentials(userID string) (string, *token.Payload, error) {
	return s.Tokens.SignWithPayload(userID, keys.TypeDBAccess)
}

// openSession issues the access token and a fresh refresh token (no
// predecessor) for a just-authenticated user.
func (s *AuthService) openSession(ctx context.Context, user *models.User) (*SessionResult, error) {
	accessToken, accessPayload, err := s.Tokens.SignWithPayload(user.ID, keys.TypeAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshPayload, err := s.Store.Issue(ctx, user.ID, "")
	if err != nil {
		return nil, err
	}
	return &SessionResult{
		AccessToken:    accessToken,
		AccessPayload:  accessPayload,
		RefreshToken:   refreshToken,
		RefreshPayload: refreshPayload,
		User:           user,
	}, nil
}

// publish and record are best-effort side channels; their failures are
// logged and swallowed. Events go out on their own goroutine so a slow
// broker never holds the request that produced them.
func (s *AuthService) publish(ctx context.Context, ev events.Event) {
	l := logging.FromContext(ctx)
	p := s.Producer
	go func() {
		if err := p.Publish(context.Background(), ev); err != nil {
			l.Warn("event_publish_failed", "type", ev.Type, "error", err)
		}
	}()
}

func (s *AuthService) record(ctx context.Context, e audit.Entry) {
	if err := s.Audit.Record(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("audit_record_failed", "action", e.Action, "error", err)
	}
}
