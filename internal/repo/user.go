package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/leeluca/seon-sub000/internal/models"
	"github.com/leeluca/seon-sub000/internal/password"
)

// UserRepo is the user-lookup collaborator. The user table belongs to the
// goal-tracking domain; auth reads it for credential checks and writes it
// once, on sign-up.
type UserRepo struct {
	DB *gorm.DB
}

// FindByCredentials resolves email+password to a user. Unknown email and
// wrong password both come back as ErrInvalidCredentials, callers must not
// be able to tell which it was.
func (r *UserRepo) FindByCredentials(ctx context.Context, email, pw string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Compare(pw, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user, rejecting duplicates by email or id.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).
			Where("email = ? OR id = ?", u.Email, u.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUser
		}
		return tx.Create(u).Error
	})
}
