package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/keycloak"
	"github.com/kennethcanega/userdesk/internal/pkg/jwt"
	"github.com/kennethcanega/userdesk/internal/pkg/response"
)

// UserResolver loads the local profile row that backs an authenticated
// principal. Both lookup errors use gorm.ErrRecordNotFound for misses.
type UserResolver interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByKeycloakID(ctx context.Context, keycloakID string) (*domain.User, error)
}

// IdentityProvider validates an access token against the external
// provider and returns who it belongs to.
type IdentityProvider interface {
	UserInfo(ctx context.Context, accessToken string) (*keycloak.Identity, error)
}

// JWTAuth validates locally issued bearer tokens, re-resolves the
// profile row and attaches user_id, username and role to the context.
// The role always comes from the database, not from the token, so a
// demotion takes effect before the access token expires.
func JWTAuth(tokens *jwt.Service, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		u, err := users.GetByUsername(c.Request.Context(), claims.Subject)
		attachUser(c, u, err)
	}
}

// KeycloakAuth validates provider-issued bearer tokens by asking the
// provider's userinfo endpoint, then resolves the local profile row by
// username with a fallback on the stored provider subject.
func KeycloakAuth(idp IdentityProvider, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			return
		}

		ident, err := idp.UserInfo(c.Request.Context(), raw)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		u, err := users.GetByUsername(c.Request.Context(), ident.Username)
		if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
			u, err = users.GetByKeycloakID(c.Request.Context(), ident.Subject)
		}
		attachUser(c, u, err)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
		c.Abort()
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be: Bearer <token>")
		c.Abort()
		return "", false
	}
	return parts[1], true
}

func attachUser(c *gin.Context, u *domain.User, err error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "No profile for this account")
			c.Abort()
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not resolve user")
		c.Abort()
		return
	}
	if !u.Active {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Account is deactivated")
		c.Abort()
		return
	}

	c.Set("user_id", u.ID)
	c.Set("username", u.Username)
	c.Set("role", string(u.Role))
	c.Next()
}
