package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/contact"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the application. Non-postgres databases
// are migrated from these structs.
func Models() []any {
	return []any{
		&authdomain.User{},
		&authdomain.Session{},
		&profiledomain.Profile{},
		&catalogdomain.Tool{},
		&chatdomain.Conversation{},
		&chatdomain.Message{},
		&contact.Message{},
	}
}

// Run brings the schema up to date. Postgres gets the versioned SQL with its
// search and change-notification triggers; other dialects use AutoMigrate.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
