// Package cache keeps the latest reading and watering in Redis so dashboards
// can show current garden state without querying the SQL store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// Keys written by the controller.
const (
	KeyLastReading  = "irrigation:last_reading"
	KeyLastWatering = "irrigation:last_watering"
)

const pingTimeout = 5 * time.Second

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("cache: not found")

	// ErrConnectionFailed is returned when Redis does not answer PING.
	ErrConnectionFailed = errors.New("cache: connection failed")
)

// LastReading is the cached form of the most recent persisted reading.
type LastReading struct {
	SensorsID    string    `json:"sensors_id"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture float64   `json:"soil_moisture"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// LastWatering is the cached form of the most recent valve actuation.
type LastWatering struct {
	SensorsID    string    `json:"sensors_id"`
	Milliseconds int64     `json:"milliseconds"`
	WateredAt    time.Time `json:"watered_at"`
}

// Client is a thin wrapper over a go-redis client.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect creates the Redis client and verifies it with PING.
func Connect(ctx context.Context, cfg config.CacheConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	c := New(rdb, time.Duration(cfg.TTL)*time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.HealthCheck(pingCtx); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// New wraps an existing go-redis client. A zero ttl keeps keys forever.
func New(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{rdb: rdb, ttl: ttl}
}

// SetLastReading overwrites the cached reading.
func (c *Client) SetLastReading(ctx context.Context, r LastReading) error {
	return c.setJSON(ctx, KeyLastReading, r)
}

// LastReading returns the cached reading or ErrNotFound.
func (c *Client) LastReading(ctx context.Context) (LastReading, error) {
	var r LastReading
	err := c.getJSON(ctx, KeyLastReading, &r)
	return r, err
}

// SetLastWatering overwrites the cached watering.
func (c *Client) SetLastWatering(ctx context.Context, w LastWatering) error {
	return c.setJSON(ctx, KeyLastWatering, w)
}

// LastWatering returns the cached watering or ErrNotFound.
func (c *Client) LastWatering(ctx context.Context) (LastWatering, error) {
	var w LastWatering
	err := c.getJSON(ctx, KeyLastWatering, &w)
	return w, err
}

// HealthCheck sends PING.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("getting %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
