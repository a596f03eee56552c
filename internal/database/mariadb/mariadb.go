// Package mariadb implements the attendance store on MariaDB/MySQL, the
// storage the attendance kiosk historically ran on. Times are stored as UTC
// DATETIME and slot durations as TIME.
package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	database.RegisterBackend("mariadb", func(ctx context.Context, dsn string, opts database.OpenOptions) (database.Store, error) {
		return Open(ctx, dsn, opts)
	})
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPool creates a new MariaDB connection pool. The DSN is normalized so
// DATETIME columns scan into time.Time in UTC and migrations may contain
// several statements.
func NewPool(ctx context.Context, dsn string, opts database.OpenOptions) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	if _, ok := cfg.Params["innodb_lock_wait_timeout"]; !ok {
		cfg.Params["innodb_lock_wait_timeout"] = strconv.Itoa(database.MaxStatementSeconds)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MariaDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	maxOpen, maxIdle := 5, 2
	if opts.MaxOpenConns > 0 {
		maxOpen = opts.MaxOpenConns
	}
	if opts.MaxIdleConns > 0 {
		maxIdle = opts.MaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db, logger: opts.Log()}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Migrate applies pending schema migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	m := &database.Migrator{
		DB:  p.db,
		FS:  migrationsFS,
		Dir: "migrations",
		CreateTable: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
		Record: "INSERT INTO schema_migrations (version) VALUES (?)",
		Logger: p.logger,
	}
	return m.Migrate(ctx)
}

// Store is a database.Store backed by MariaDB.
type Store struct {
	pool *Pool
	loc  *time.Location
	now  func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open creates a pool, runs migrations and returns the store.
func Open(ctx context.Context, dsn string, opts database.OpenOptions) (*Store, error) {
	pool, err := NewPool(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{pool: pool, loc: opts.Loc(), now: time.Now}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) dayKey(t time.Time) string {
	return database.DayOf(t, s.loc).Format(database.DateLayout)
}

// timeArg stores times as UTC DATETIME values.
func timeArg(t time.Time) any {
	return t.UTC()
}

// isForeignKeyViolation reports MySQL error 1452 (no parent row).
func isForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1452
}
