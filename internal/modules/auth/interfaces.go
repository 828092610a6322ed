package auth

import (
	"context"
	"time"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/keycloak"
)

// UserReader is the subset of user lookups the auth service needs.
type UserReader interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByKeycloakID(ctx context.Context, keycloakID string) (*domain.User, error)
}

// TokenService is the local refresh-token state machine.
type TokenService interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Rotate(ctx context.Context, plain string) (*domain.User, string, error)
	RevokeByPlainToken(ctx context.Context, plain string) (*domain.User, error)
	RevokeAllForUser(ctx context.Context, userID int64) error
	TTL() time.Duration
}

// AccessIssuer mints the stateless bearer token.
type AccessIssuer interface {
	GenerateToken(username, role string) (string, error)
}

// IdentityProvider is the delegated-auth credential exchange surface.
type IdentityProvider interface {
	ExchangePassword(ctx context.Context, username, plainPassword string) (*keycloak.TokenSet, error)
	ExchangeRefresh(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
}
