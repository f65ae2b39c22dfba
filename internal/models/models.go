package models

import (
	"time"
)

// User is owned by the goal-tracking domain; auth only reads it for
// credential validation and creates it on sign-up. The ID is the
// client-generated uuid the local-first sync layer keys everything on.
type User struct {
	ID        string    `gorm:"primaryKey"       json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"not null"         json:"name"`
	Password  string    `gorm:"not null"         json:"-"`
	Status    string    `gorm:"default:active"   json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RefreshToken is one issued refresh credential. Rotation never deletes the
// superseded row, it sets RevokedAt; rows die later in the pruning sweep so
// the revocation grace window keeps working for requests already in flight.
type RefreshToken struct {
	Token     string     `gorm:"primaryKey"     json:"token"`
	UserID    string     `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null"       json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	CreatedAt time.Time  `json:"created_at"`
}
