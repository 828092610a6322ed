package database

import (
	"strings"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers the cgo-free "sqlite" driver

	"github.com/kennethcanega/userdesk/internal/domain"
)

// Connect opens a gorm handle. A postgres:// DSN selects PostgreSQL;
// anything else is treated as a SQLite path (":memory:" included), which is
// what tests and local development use.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	return gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
}

// Migrate creates or updates the two tables the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{}, &domain.RefreshToken{})
}
