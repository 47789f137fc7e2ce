package storage

import (
	"context"
	"errors"
)

// ReadingID identifies a persisted reading. It joins a watering record to
// the reading that triggered it.
type ReadingID string

// Gateway durably records readings and waterings.
type Gateway interface {
	// SaveSensorValues stores a reading and returns its generated ID.
	SaveSensorValues(ctx context.Context, temperature, humidity, soilMoisture float64) (ReadingID, error)

	// SaveWatering stores one valve actuation for a previously saved reading.
	SaveWatering(ctx context.Context, id ReadingID, milliseconds int64) error
}

var (
	// ErrPersistence wraps every failure to durably record data.
	ErrPersistence = errors.New("storage: persistence failed")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrEmptyReadingID is returned by SaveWatering for a zero ReadingID.
	ErrEmptyReadingID = errors.New("storage: empty reading id")
)

// Logger is the subset of logging.Logger used by this package.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}
