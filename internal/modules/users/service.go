package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/keycloak"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/pkg/password"
)

type Service struct {
	users  UserStore
	broker DirectoryBroker
	log    *logger.Logger
}

// NewService builds the profile service. broker may be nil, in which
// case credentials are managed locally and no directory sync happens.
func NewService(users UserStore, broker DirectoryBroker, log *logger.Logger) *Service {
	return &Service{users: users, broker: broker, log: log}
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// Search matches the term against name and email, case-insensitively.
// A blank term returns an empty result without touching the store.
func (s *Service) Search(ctx context.Context, term string) ([]domain.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []domain.User{}, nil
	}
	return s.users.Search(ctx, term)
}

// Create registers a new user. In delegated mode the directory record
// is created first; the local row is only written once the provider
// accepted the user. Returned warnings describe non-fatal directory
// sub-steps (password set, role assignment) that did not complete.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*domain.User, []string, error) {
	role, err := normalizeRole(req.Role)
	if err != nil {
		return nil, nil, err
	}

	taken, err := s.users.UsernameTaken(ctx, req.Username, 0)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, ErrUsernameTaken
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	u := &domain.User{
		Name:     req.Name,
		Email:    strings.ToLower(req.Email),
		Username: req.Username,
		Role:     role,
		Active:   active,
	}

	var warnings []string
	if s.broker != nil {
		externalID, warns, err := s.broker.CreateUser(ctx, keycloak.UserCommand{
			Username: req.Username,
			Email:    u.Email,
			Name:     req.Name,
			Password: req.Password,
			Role:     string(role),
			Active:   active,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		u.KeycloakUserID = externalID
		warnings = warns
		for _, w := range warns {
			s.log.Warn().Str("username", req.Username).Msg(w)
		}
	} else {
		hash, err := password.Hash(req.Password)
		if err != nil {
			return nil, nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, nil, err
	}
	return u, warnings, nil
}

// Update applies a partial update. Nil fields keep their current
// value. In delegated mode the directory is updated first and the
// local row is left untouched when that fails.
func (s *Service) Update(ctx context.Context, id int64, req UpdateUserRequest) (*domain.User, []string, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = strings.ToLower(*req.Email)
	}
	if req.Username != nil && *req.Username != u.Username {
		taken, err := s.users.UsernameTaken(ctx, *req.Username, u.ID)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			return nil, nil, ErrUsernameTaken
		}
		u.Username = *req.Username
	}
	if req.Role != nil {
		role, err := normalizeRole(*req.Role)
		if err != nil {
			return nil, nil, err
		}
		u.Role = role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}

	var plain string
	if req.Password != nil && *req.Password != "" {
		plain = *req.Password
	}

	var warnings []string
	if s.broker != nil && u.KeycloakUserID != "" {
		warnings, err = s.broker.UpdateUser(ctx, u.KeycloakUserID, keycloak.UserCommand{
			Username: u.Username,
			Email:    u.Email,
			Name:     u.Name,
			Password: plain,
			Role:     string(u.Role),
			Active:   u.Active,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		for _, w := range warnings {
			s.log.Warn().Int64("user_id", u.ID).Msg(w)
		}
	} else if plain != "" {
		hash, err := password.Hash(plain)
		if err != nil {
			return nil, nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, nil, err
	}
	return u, warnings, nil
}

// Delete removes the user. The directory record goes first in
// delegated mode; the local row and its refresh tokens are removed in
// one transaction so no session survives the account.
func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if s.broker != nil && u.KeycloakUserID != "" {
		if err := s.broker.DeleteUser(ctx, u.KeycloakUserID); err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	return s.users.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&domain.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", u.ID).
			Update("revoked_at", now).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.User{}, u.ID).Error
	})
}

func normalizeRole(raw string) (domain.Role, error) {
	if raw == "" {
		return domain.RoleUser, nil
	}
	if !domain.ValidRole(raw) {
		return "", ErrInvalidRole
	}
	return domain.Role(raw), nil
}
