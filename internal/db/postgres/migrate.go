package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/kailas-cloud/coursedex/internal/db"
)

//go:embed migrations
var embedMigrations embed.FS

// Migrate applies pending goose migrations embedded in the binary.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("set dialect: %w", err)}
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return &db.Error{Op: db.OpMigrate, Err: err}
	}
	return nil
}
