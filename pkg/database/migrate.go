package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// migrationLockID is the advisory lock key held while a file is applied.
const migrationLockID = 727_001

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	migrationApplied = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	recordMigration  = `INSERT INTO schema_migrations (version) VALUES ($1)`
	lockMigrations   = `SELECT pg_advisory_xact_lock($1)`
)

// Substrings of driver and network errors that mean the server was not
// reachable. Server-side SQL errors never match.
var connErrorHints = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"dial tcp",
	"EOF",
	"server closed the connection unexpectedly",
	"could not connect",
}

func isConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	var connErr *pgconn.ConnectError
	switch {
	case err == nil, errors.As(err, &pgErr):
		return false
	case errors.As(err, &connErr):
		return true
	}
	msg := err.Error()
	return slices.ContainsFunc(connErrorHints, func(h string) bool {
		return strings.Contains(msg, h)
	})
}

// RunMigrations applies the *.up.sql files at the root of migrations in
// name order, one transaction per file, and records each version in
// schema_migrations. Only connection failures are retried.
func RunMigrations(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) error {
	m := migrator{db: db, files: migrations, logger: logger}
	if err := retry(ctx, "migrations", logger, isConnectionError, func() error { return m.run(ctx) }); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// pendingFiles lists the up migrations sorted by name.
func pendingFiles(migrations fs.FS) ([]string, error) {
	names, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	names = slices.DeleteFunc(names, func(n string) bool {
		info, err := fs.Stat(migrations, n)
		return err != nil || info.IsDir()
	})
	slices.Sort(names)
	return names, nil
}

type migrator struct {
	db     DBTX
	files  fs.FS
	logger *slog.Logger
}

func (m migrator) run(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	names, err := pendingFiles(m.files)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.applyIfNew(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (m migrator) applyIfNew(ctx context.Context, name string) error {
	log := m.logger.With(slog.String("version", name))

	var done bool
	if err := m.db.QueryRow(ctx, migrationApplied, name).Scan(&done); err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if done {
		log.Debug("migration already applied")
		return nil
	}

	body, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	if err := m.apply(ctx, name, string(body)); err != nil {
		return fmt.Errorf("migration %s: %w", name, err)
	}
	log.Info("migration applied")
	return nil
}

// apply runs one file under the advisory lock. A concurrent runner may have
// applied it while this one waited, so the version is checked again.
func (m migrator) apply(ctx context.Context, name, body string) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockMigrations, migrationLockID); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	var done bool
	if err := tx.QueryRow(ctx, migrationApplied, name).Scan(&done); err != nil {
		return fmt.Errorf("recheck: %w", err)
	}
	if done {
		return nil
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.Exec(ctx, recordMigration, name); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}
