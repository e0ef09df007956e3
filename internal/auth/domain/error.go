package domain

import "errors"

// Login and session failures all surface as 401; the distinct values exist
// for logs and tests.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserDisabled       = errors.New("user_disabled")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionNotFound    = errors.New("session_not_found")
	ErrSessionExpired     = errors.New("session_expired")
	ErrSessionRevoked     = errors.New("session_revoked")
)

var (
	ErrInvalidRole    = errors.New("invalid_role")
	ErrMissingCabinet = errors.New("cabinet_required_for_role")
	ErrUserNotFound   = errors.New("user_not_found")
	ErrUserExists     = errors.New("user_exists")
)
