package domain

import "errors"

// Sentinel errors for the credential flow. Handlers map these to HTTP
// status codes; services wrap underlying causes with %w.
var (
	ErrValidation         = errors.New("validation failed")
	ErrMissingCredentials = errors.New("email or username and password are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked due to too many failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrDuplicateAccount   = errors.New("account with this email, username or phone already exists")
	ErrNotFound           = errors.New("account not found")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenStale   = errors.New("token issued before last password change")
)
