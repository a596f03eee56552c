package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrator applies embedded *.sql files in lexical order and records each
// applied file in schema_migrations. Every file runs in its own transaction.
type Migrator struct {
	DB  *sql.DB
	FS  fs.FS
	Dir string

	// CreateTable creates schema_migrations if it does not exist.
	CreateTable string
	// Record inserts one applied version; it takes a single placeholder.
	Record string

	Logger *zap.Logger
}

// Applied returns the already-applied migration versions in order.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	if _, err := m.DB.ExecContext(ctx, m.CreateTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := m.DB.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns the migration files not yet applied, sorted.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := fs.ReadDir(m.FS, m.Dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	files, err := m.Pending(ctx)
	if err != nil {
		return err
	}

	log := m.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for _, file := range files {
		if err := m.apply(ctx, file); err != nil {
			return err
		}
		log.Info("applied migration", zap.String("version", file))
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, file string) error {
	content, err := fs.ReadFile(m.FS, m.Dir+"/"+file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, m.Record, file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}
