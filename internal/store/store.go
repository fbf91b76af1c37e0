// Package store provides the provisioning database for nodepulse.
//
// Monitor configs are authoritative here and cached elsewhere. The backing
// database is DuckDB.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database file. Empty or ":memory:" opens an in-memory database.
	DSN string `yaml:"dsn"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// QueryTimeout bounds single lookups when the caller context has no deadline.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DSN:             config.DefaultMetastoreDSN,
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    config.DefaultMetastoreQueryTimeout,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides database operations.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// New opens the database and applies the schema.
func New(cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if dsn == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, config: cfg}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// =============================================================================
// Schema
// =============================================================================

func (s *Store) migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "monitors",
			sql: `CREATE TABLE IF NOT EXISTS monitors (
				hostname        VARCHAR NOT NULL,
				identity        VARCHAR NOT NULL,
				owner_id        BIGINT NOT NULL,
				retention_hours DOUBLE NOT NULL,
				chart_mask      BIGINT NOT NULL,
				created_at      TIMESTAMP NOT NULL DEFAULT current_timestamp,
				updated_at      TIMESTAMP NOT NULL DEFAULT current_timestamp,
				PRIMARY KEY (hostname, identity)
			)`,
		},
		{
			name: "idx_monitors_owner",
			sql:  `CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors(owner_id)`,
		},
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Debug("migration applied", "name", m.name)
	}
	return nil
}

// =============================================================================
// Query Helpers
// =============================================================================

// withTimeout applies the configured query timeout when ctx has no deadline.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// =============================================================================
// Health Check
// =============================================================================

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
