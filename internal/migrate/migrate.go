// Package migrate applies the jobs, tasks, and api_keys schema with
// goose at startup.
package migrate

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// migrationsDir is resolved relative to the working directory of the
// binary, matching the repository layout.
const migrationsDir = "db/migrations"

// Run applies all pending migrations against dsn. It opens a
// short-lived handle of its own so migration is independent of the
// pooled application store.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
