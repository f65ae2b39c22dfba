package repo

import "errors"

// Sentinel errors surfaced by the repositories. The HTTP layer maps them to
// status codes; everything else is a persistence failure (500).
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDuplicateUser       = errors.New("user already exists")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
)
