package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/postgres"
)

// execFunc runs one statement that returns no rows.
type execFunc func(ctx context.Context, query string, args ...any) error

// dialect holds the per-backend SQL text and timestamp encoding.
type dialect struct {
	name           string
	insertReading  string
	insertWatering string
	timestamp      func(time.Time) any
}

var sqliteDialect = dialect{
	name: config.DriverSQLite,
	insertReading: `INSERT INTO sensor_values (id, temperature, humidity, soil_moisture, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
	insertWatering: `INSERT INTO waterings (sensors_id, milliseconds, watered_at)
		VALUES (?, ?, ?)`,
	// STRICT tables store timestamps as RFC 3339 text.
	timestamp: func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

var postgresDialect = dialect{
	name: config.DriverPostgres,
	insertReading: `INSERT INTO sensor_values (id, temperature, humidity, soil_moisture, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
	insertWatering: `INSERT INTO waterings (sensors_id, milliseconds, watered_at)
		VALUES ($1, $2, $3)`,
	timestamp: func(t time.Time) any { return t.UTC() },
}

// SQLStore is a Gateway over SQLite or PostgreSQL.
type SQLStore struct {
	exec    execFunc
	dialect dialect
	now     func() time.Time
	newID   func() string
}

// Option customises an SQLStore.
type Option func(*SQLStore)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// WithIDGenerator overrides reading ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *SQLStore) { s.newID = newID }
}

// NewSQLiteStore returns a store writing to a migrated SQLite database.
func NewSQLiteStore(db *database.DB, opts ...Option) *SQLStore {
	exec := func(ctx context.Context, query string, args ...any) error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	}
	return newSQLStore(exec, sqliteDialect, opts)
}

// NewPostgresStore returns a store writing to a migrated PostgreSQL database.
func NewPostgresStore(pool *postgres.Pool, opts ...Option) *SQLStore {
	exec := func(ctx context.Context, query string, args ...any) error {
		_, err := pool.Exec(ctx, query, args...)
		return err
	}
	return newSQLStore(exec, postgresDialect, opts)
}

func newSQLStore(exec execFunc, d dialect, opts []Option) *SQLStore {
	s := &SQLStore{
		exec:    exec,
		dialect: d,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the backend name.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// SaveSensorValues implements Gateway.
func (s *SQLStore) SaveSensorValues(ctx context.Context, temperature, humidity, soilMoisture float64) (ReadingID, error) {
	id := s.newID()
	if err := s.exec(ctx, s.dialect.insertReading,
		id, temperature, humidity, soilMoisture, s.dialect.timestamp(s.now()),
	); err != nil {
		return "", fmt.Errorf("%w: saving sensor values: %w", ErrPersistence, err)
	}
	return ReadingID(id), nil
}

// SaveWatering implements Gateway.
func (s *SQLStore) SaveWatering(ctx context.Context, id ReadingID, milliseconds int64) error {
	if id == "" {
		return fmt.Errorf("%w: %w", ErrPersistence, ErrEmptyReadingID)
	}
	if err := s.exec(ctx, s.dialect.insertWatering,
		string(id), milliseconds, s.dialect.timestamp(s.now()),
	); err != nil {
		return fmt.Errorf("%w: saving watering for %s: %w", ErrPersistence, id, err)
	}
	return nil
}
