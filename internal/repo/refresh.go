package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/metrics"
	"github.com/leeluca/seon-sub000/internal/models"
	"github.com/leeluca/seon-sub000/internal/token"
	"github.com/leeluca/seon-sub000/pkg/logging"
)

// GracePeriod is how long a just-revoked refresh token keeps validating.
// Two near-simultaneous refresh calls with the same token would otherwise
// race: the first rotation invalidates the token under the second. The
// window trades a bounded reuse period for not logging that session out.
const GracePeriod = 30 * time.Second

const pruneTimeout = 5 * time.Second

// RefreshTokenStore persists issued refresh tokens and implements rotation.
// The DB row, not the JWT's own exp, is authoritative for revocation.
type RefreshTokenStore struct {
	DB     *gorm.DB
	Tokens *token.Service

	now func() time.Time
}

func NewRefreshTokenStore(db *gorm.DB, tokens *token.Service) *RefreshTokenStore {
	return &RefreshTokenStore{DB: db, Tokens: tokens, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *RefreshTokenStore) WithNow(now func() time.Time) *RefreshTokenStore {
	s.now = now
	return s
}

// Issue signs a new refresh token and records it. When oldToken is non-empty
// the old row is marked revoked in the same transaction, never deleted:
// requests already in flight with it still need to pass the grace check.
func (s *RefreshTokenStore) Issue(ctx context.Context, userID, oldToken string) (string, *token.Payload, error) {
	signed, payload, err := s.Tokens.SignWithPayload(userID, keys.TypeRefresh)
	if err != nil {
		return "", nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.RefreshToken{
			Token:     signed,
			UserID:    userID,
			ExpiresAt: payload.ExpiresAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if oldToken != "" {
			now := s.now().UTC()
			if err := tx.Model(&models.RefreshToken{}).
				Where("token = ? AND revoked_at IS NULL", oldToken).
				Update("revoked_at", now).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	// Pruning is opportunistic; it must never fail or delay the request
	// that triggered it.
	go s.pruneAsync(logging.FromContext(ctx))

	return signed, payload, nil
}

// Validate checks a presented refresh token: cryptographic verification
// first, then the DB record joined against the user table so tokens of
// deleted users die with them. Anything invalid yields ("", nil, nil); a
// non-nil error means storage failed and says nothing about the token.
func (s *RefreshTokenStore) Validate(ctx context.Context, raw string) (string, *token.Payload, error) {
	if raw == "" {
		return "", nil, nil
	}
	payload := s.Tokens.Verify(raw, keys.TypeRefresh)
	if payload == nil {
		return "", nil, nil
	}

	var record models.RefreshToken
	err := s.DB.WithContext(ctx).
		Joins("JOIN users ON users.id = refresh_tokens.user_id").
		Where("refresh_tokens.token = ? AND refresh_tokens.user_id = ?", raw, payload.Subject).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load refresh token: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(record.ExpiresAt) {
		return "", nil, nil
	}
	if record.RevokedAt != nil && now.Sub(*record.RevokedAt) >= GracePeriod {
		return "", nil, nil
	}
	return raw, payload, nil
}

// Delete removes the record by exact token value (sign-out). Deleting a
// token that is already gone is not an error.
func (s *RefreshTokenStore) Delete(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.DB.WithContext(ctx).
		Where("token = ?", raw).
		Delete(&models.RefreshToken{}).Error
}

// PruneExpired deletes rows that can no longer validate: past expiry, or
// revoked longer than the grace period ago.
func (s *RefreshTokenStore) PruneExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", now).
		Or("revoked_at IS NOT NULL AND revoked_at <= ?", now.Add(-GracePeriod)).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	metrics.PrunedTokens.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

func (s *RefreshTokenStore) pruneAsync(l *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()
	if _, err := s.PruneExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Warn("refresh_prune_failed", "error", err)
	}
}
