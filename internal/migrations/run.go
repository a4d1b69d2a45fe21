// Package migrations создаёт схему базы бота (users, payments, settings).
// Сервис сам схему не меняет: миграции нужны для локальных фикстур и тестов.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite3/*.sql pgx/*.sql
var files embed.FS

// Run применяет миграции для драйвера driver ("sqlite3" или "pgx").
func Run(db *sql.DB, driver string) error {
	const op = "migrations.Run"

	var (
		instance database.Driver
		err      error
	)
	switch driver {
	case "sqlite3":
		instance, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "pgx":
		instance, err = pgxv5.WithInstance(db, &pgxv5.Config{})
	default:
		return fmt.Errorf("%s: unsupported driver %q", op, driver)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	source, err := iofs.New(files, driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
