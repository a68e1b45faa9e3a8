// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/migrations"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/aliases"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/folders"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/sequences"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/tombstones"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Folders returns a folders.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

// Objects returns an objects.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Objects(db dbx.DBTX) objects.Repository {
	return objects.NewPostgresRepository(db)
}

// Tombstones returns a tombstones.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Tombstones(db dbx.DBTX) tombstones.Repository {
	return tombstones.NewPostgresRepository(db)
}

// Sequences returns a sequences.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sequences(db dbx.DBTX) sequences.Repository {
	return sequences.NewPostgresRepository(db)
}

// Aliases returns an aliases.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Aliases(db dbx.DBTX) aliases.Repository {
	return aliases.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
