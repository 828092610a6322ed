// Package seed guarantees a usable admin account and repairs legacy
// rows that predate the username and credential columns. It runs at
// startup and is idempotent. It assumes a single instance performs the
// startup migration; run one replica during upgrades.
package seed

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/pkg/password"
)

const (
	adminUsername   = "admin"
	adminPassword   = "admin"
	defaultPassword = "changeme"
)

var usernameCleaner = regexp.MustCompile(`[^a-z0-9._-]`)

// Run ensures the admin account and backfills incomplete rows, all in
// one transaction so a crash mid-seed leaves no half-repaired state.
func Run(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAdmin(tx, log); err != nil {
			return err
		}
		return backfill(tx, log)
	})
}

// ensureAdmin creates the admin account, or resets an existing one to
// a known state: role admin, active, password "admin".
func ensureAdmin(tx *gorm.DB, log *logger.Logger) error {
	hash, err := password.Hash(adminPassword)
	if err != nil {
		return err
	}

	var admin domain.User
	err = tx.Where("username = ?", adminUsername).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		admin = domain.User{
			Name:         "Administrator",
			Email:        "admin@example.com",
			Username:     adminUsername,
			PasswordHash: hash,
			Role:         domain.RoleAdmin,
			Active:       true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		log.Info().Msg("seeded admin account")
		return nil
	}
	if err != nil {
		return err
	}

	if strings.TrimSpace(admin.Name) == "" {
		admin.Name = "Administrator"
	}
	if strings.TrimSpace(admin.Email) == "" {
		admin.Email = "admin@example.com"
	}
	admin.Role = domain.RoleAdmin
	admin.Active = true
	admin.PasswordHash = hash
	if err := tx.Save(&admin).Error; err != nil {
		return err
	}
	log.Info().Msg("reset admin account")
	return nil
}

// backfill gives legacy rows a username, a password hash, a role and
// an active flag so every row satisfies the login path's expectations.
func backfill(tx *gorm.DB, log *logger.Logger) error {
	var users []domain.User
	if err := tx.Find(&users).Error; err != nil {
		return err
	}

	for i := range users {
		u := &users[i]
		updated := false

		if strings.TrimSpace(u.Username) == "" {
			username, err := uniqueUsername(tx, deriveUsername(u), u.ID)
			if err != nil {
				return err
			}
			u.Username = username
			updated = true
		}
		if strings.TrimSpace(u.PasswordHash) == "" {
			hash, err := password.Hash(defaultPassword)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
			updated = true
		}
		if !domain.ValidRole(string(u.Role)) {
			u.Role = domain.RoleUser
			updated = true
		}

		if !updated {
			continue
		}
		if err := tx.Save(u).Error; err != nil {
			return err
		}
		log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("backfilled user")
	}
	return nil
}

// deriveUsername prefers the email local part, then a dotted lowercase
// name, then a numbered fallback.
func deriveUsername(u *domain.User) string {
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		dotted := strings.Join(strings.Fields(strings.ToLower(name)), ".")
		return fmt.Sprintf("%s%d", dotted, u.ID)
	}
	return fmt.Sprintf("user%d", u.ID)
}

// uniqueUsername sanitizes base and, when taken by another row, tries
// base2, base3 and so on until a free name is found.
func uniqueUsername(tx *gorm.DB, base string, currentID int64) (string, error) {
	cleaned := usernameCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(base)), "")
	if cleaned == "" {
		cleaned = "user"
	}

	taken, err := usernameTaken(tx, cleaned, currentID)
	if err != nil {
		return "", err
	}
	if !taken {
		return cleaned, nil
	}

	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", cleaned, i)
		taken, err := usernameTaken(tx, candidate, currentID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

func usernameTaken(tx *gorm.DB, username string, currentID int64) (bool, error) {
	var count int64
	err := tx.Model(&domain.User{}).
		Where("username = ? AND id <> ?", username, currentID).
		Count(&count).Error
	return count > 0, err
}
