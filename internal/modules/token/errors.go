package token

import "errors"

// ErrInvalidToken covers every unusable presentation: unknown, revoked,
// expired, or owned by an inactive user. Callers must not surface which
// case it was.
var ErrInvalidToken = errors.New("invalid refresh token")
