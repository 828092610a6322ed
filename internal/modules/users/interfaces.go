package users

import (
	"context"

	"gorm.io/gorm"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/keycloak"
)

type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Search(ctx context.Context, term string) ([]domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error)
	DB() *gorm.DB
}

// DirectoryBroker mirrors profile changes into an external identity
// provider. It is nil when authentication is handled locally.
type DirectoryBroker interface {
	CreateUser(ctx context.Context, cmd keycloak.UserCommand) (string, []string, error)
	UpdateUser(ctx context.Context, externalID string, cmd keycloak.UserCommand) ([]string, error)
	DeleteUser(ctx context.Context, externalID string) error
}
