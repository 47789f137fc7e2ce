// Package postgres provides the PostgreSQL connection pool used when the
// storage driver is "postgres".
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
)

const connectTimeout = 10 * time.Second

// ErrInvalidURL is returned when the connection string cannot be parsed.
var ErrInvalidURL = errors.New("postgres: invalid connection url")

// Pool wraps a pgx connection pool.
type Pool struct {
	*pgxpool.Pool
}

// Open parses the URL, applies the pool size and verifies connectivity.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns) //nolint:gosec // Validated by config
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verifying postgres connection: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck pings the server.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (p *Pool) Close() error {
	if p.Pool != nil {
		p.Pool.Close()
	}
	return nil
}

// Migrate applies pending migrations from dir of fsys, one transaction each.
// File layout and ordering are shared with the SQLite runner.
func (p *Pool) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := p.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := database.LoadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := p.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range database.Pending(migrations, applied) {
		if err := p.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (p *Pool) appliedMigrations(ctx context.Context) ([]database.MigrationRecord, error) {
	rows, err := p.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []database.MigrationRecord
	for rows.Next() {
		var r database.MigrationRecord
		if err := rows.Scan(&r.Version, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

func (p *Pool) applyMigration(ctx context.Context, m database.Migration) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is no-op after commit

	// No arguments: pgx uses the simple protocol, so multi-statement files work.
	if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)",
		m.Version, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}
