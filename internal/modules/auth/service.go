package auth

import (
	"context"
	"errors"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/keycloak"
	"github.com/kennethcanega/userdesk/internal/modules/token"
	"github.com/kennethcanega/userdesk/internal/pkg/password"

	"gorm.io/gorm"
)

// Service implements login/refresh/logout over either the local user table
// (bcrypt + our own refresh tokens) or a delegated identity provider
// (password and refresh_token grants, provider-issued tokens). idp == nil
// selects local mode.
type Service struct {
	users  UserReader
	tokens TokenService
	jwt    AccessIssuer
	idp    IdentityProvider
}

// Session is what a successful login or refresh hands the HTTP layer.
// RefreshTTLSeconds drives the cookie's Max-Age.
type Session struct {
	User              *domain.User
	AccessToken       string
	RefreshToken      string
	RefreshTTLSeconds int
}

func NewService(users UserReader, tokens TokenService, jwt AccessIssuer, idp IdentityProvider) *Service {
	return &Service{users: users, tokens: tokens, jwt: jwt, idp: idp}
}

func (s *Service) Login(ctx context.Context, username, plainPassword string) (*Session, error) {
	if s.idp != nil {
		return s.delegatedLogin(ctx, username, plainPassword)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	// The active flag gates authentication even with a correct password.
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	if !password.Matches(plainPassword, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	access, err := s.jwt.GenerateToken(user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:              user,
		AccessToken:       access,
		RefreshToken:      refresh,
		RefreshTTLSeconds: int(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshRaw string) (*Session, error) {
	if s.idp != nil {
		return s.delegatedRefresh(ctx, refreshRaw)
	}

	user, rotated, err := s.tokens.Rotate(ctx, refreshRaw)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	access, err := s.jwt.GenerateToken(user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}

	return &Session{
		User:              user,
		AccessToken:       access,
		RefreshToken:      rotated,
		RefreshTTLSeconds: int(s.tokens.TTL().Seconds()),
	}, nil
}

// Logout revokes the presented token and every sibling for its owner, or
// asks the provider to invalidate the token in delegated mode. Errors are
// returned for logging only; the HTTP layer never surfaces them.
func (s *Service) Logout(ctx context.Context, refreshRaw string) error {
	if s.idp != nil {
		return s.idp.Logout(ctx, refreshRaw)
	}

	owner, err := s.tokens.RevokeByPlainToken(ctx, refreshRaw)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			return nil
		}
		return err
	}
	return s.tokens.RevokeAllForUser(ctx, owner.ID)
}

func (s *Service) delegatedLogin(ctx context.Context, username, plainPassword string) (*Session, error) {
	tokens, err := s.idp.ExchangePassword(ctx, username, plainPassword)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := s.resolveLocal(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:              user,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		RefreshTTLSeconds: tokens.RefreshExpiresIn,
	}, nil
}

func (s *Service) delegatedRefresh(ctx context.Context, refreshRaw string) (*Session, error) {
	tokens, err := s.idp.ExchangeRefresh(ctx, refreshRaw)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.resolveLocal(ctx, tokens.AccessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return &Session{
		User:              user,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		RefreshTTLSeconds: tokens.RefreshExpiresIn,
	}, nil
}

// resolveLocal maps a provider-issued access token onto the local profile,
// preferring the preferred_username claim and falling back to sub. The
// provider accepting the credentials is not enough: a missing or inactive
// local profile still rejects the session.
func (s *Service) resolveLocal(ctx context.Context, accessToken string) (*domain.User, error) {
	username, subject, ok := keycloak.TokenIdentity(accessToken)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	var user *domain.User
	var err error
	if username != "" {
		user, err = s.users.GetByUsername(ctx, username)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if user == nil && subject != "" {
		user, err = s.users.GetByKeycloakID(ctx, subject)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if user == nil || !user.Active {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
