package persistence

import (
	"context"
	"database/sql"
	"embed"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

type MigrationDirection string

const (
	MigrateUp     MigrationDirection = "up"
	MigrateDown   MigrationDirection = "down"
	MigrateStatus MigrationDirection = "status"
)

// Migrate applies the embedded schema migrations through a database/sql handle
// borrowed from pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, direction MigrationDirection, out io.Writer) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrateDB(ctx, db, direction, out)
}

func migrateDB(ctx context.Context, db *sql.DB, direction MigrationDirection, out io.Writer) error {
	goose.SetBaseFS(migrationsFS)
	if out == nil {
		out = io.Discard
	}
	goose.SetLogger(log.New(out, "", log.LstdFlags))
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose dialect")
	}

	var err error
	switch direction {
	case MigrateUp:
		err = goose.UpContext(ctx, db, migrationsDir)
	case MigrateDown:
		err = goose.DownContext(ctx, db, migrationsDir)
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, migrationsDir)
	default:
		return errors.Errorf("unknown migration direction %q", direction)
	}
	return errors.Wrapf(err, "migrate %s", direction)
}
