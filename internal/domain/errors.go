package domain

import "errors"

// Sentinel errors returned by the auth service. Handlers translate these to
// HTTP status codes; nothing below 500 ever carries internal detail.
var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMissingIdentifier   = errors.New("email, username or phone number is required")
	ErrInvalidToken        = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserCreate          = errors.New("failed to create user")
)
