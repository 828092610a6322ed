package users

import "errors"

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidRole   = errors.New("invalid role")

	// ErrUpstream wraps identity-provider failures; handlers map it to 502.
	ErrUpstream = errors.New("identity provider request failed")
)
