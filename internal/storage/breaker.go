package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// Breaker wraps a Gateway with a circuit breaker. After the configured number
// of consecutive failures it rejects calls with ErrUnavailable until the open
// timeout elapses, then lets a single probe through.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker builds a Breaker. onStateChange may be nil.
func NewBreaker(next Gateway, cfg config.BreakerConfig, onStateChange func(from, to string)) *Breaker {
	failures := uint32(cfg.ConsecutiveFailures) //nolint:gosec // Validated by config
	if failures == 0 {
		failures = 1
	}

	settings := gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.OpenTimeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Shutdown cancellations say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onStateChange(from.String(), to.String())
		}
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the breaker state: "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// SaveSensorValues implements Gateway.
func (b *Breaker) SaveSensorValues(ctx context.Context, temperature, humidity, soilMoisture float64) (ReadingID, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SaveSensorValues(ctx, temperature, humidity, soilMoisture)
	})
	if err != nil {
		return "", b.wrap(err)
	}
	return res.(ReadingID), nil
}

// SaveWatering implements Gateway.
func (b *Breaker) SaveWatering(ctx context.Context, id ReadingID, milliseconds int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.SaveWatering(ctx, id, milliseconds)
	})
	if err != nil {
		return b.wrap(err)
	}
	return nil
}

func (b *Breaker) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w: %w", ErrPersistence, ErrUnavailable, err)
	}
	return err
}
