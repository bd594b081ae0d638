// Package postgres provides a PostgreSQL implementation of settings.Store.
// It uses pgx/v5 for connection pooling and stores each workspace's
// settings document as a single JSONB row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grothkopp/ainb/pkg/settings"
)

// Store is a PostgreSQL-backed settings store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements settings.Store at compile time.
var _ settings.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Load retrieves the settings document for the workspace in the context.
// The raw row is passed through settings.Normalize, so documents written
// by older releases are migrated on read. When the stored row cannot be
// decoded, Load returns a usable default document alongside the
// malformed-state error.
func (s *Store) Load(ctx context.Context) (settings.Document, error) {
	workspace := settings.GetWorkspace(ctx)

	var raw []byte
	err := s.pool.QueryRow(ctx,
		"SELECT document FROM settings WHERE workspace = $1",
		workspace,
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		return settings.Document{}, settings.ErrNotFound
	}
	if err != nil {
		return settings.Document{}, fmt.Errorf("querying settings: %w", err)
	}

	return settings.Normalize(raw)
}

// Save persists the settings document for the workspace in the context,
// replacing any previous document.
func (s *Store) Save(ctx context.Context, doc settings.Document) error {
	data, err := settings.Encode(doc)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (workspace, version, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace) DO UPDATE
		SET version = EXCLUDED.version,
		    document = EXCLUDED.document,
		    updated_at = EXCLUDED.updated_at
	`,
		settings.GetWorkspace(ctx), settings.CurrentVersion, data, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upserting settings: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
