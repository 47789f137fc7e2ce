package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt/topic"
)

// Config is the root configuration structure for the irrigation controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Watering   WateringConfig   `yaml:"watering"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Controller ControllerConfig `yaml:"controller"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Topic     string              `yaml:"topic"` // sensor telemetry topic
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`

	// StartupAttempts bounds the retries of the very first connection.
	// Once connected, paho reconnects forever.
	StartupAttempts int `yaml:"startup_attempts"`
}

// WateringConfig contains the actuator topic and decision policy parameters.
type WateringConfig struct {
	Topic  string       `yaml:"topic"`
	QoS    int          `yaml:"qos"`
	Policy PolicyConfig `yaml:"policy"`
}

// PolicyConfig parameterises the linear soil moisture policy.
type PolicyConfig struct {
	// DryThreshold is the soil moisture (percent) at or below which the valve runs for MaxMilliseconds.
	DryThreshold float64 `yaml:"dry_threshold"`

	// WetThreshold is the soil moisture (percent) at or above which no watering is needed.
	WetThreshold float64 `yaml:"wet_threshold"`

	MinMilliseconds int64 `yaml:"min_milliseconds"`
	MaxMilliseconds int64 `yaml:"max_milliseconds"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Timeout  int            `yaml:"timeout"` // seconds per gateway call
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// BreakerConfig configures the circuit breaker in front of the storage backend.
type BreakerConfig struct {
	Enabled             bool `yaml:"enabled"`
	ConsecutiveFailures int  `yaml:"consecutive_failures"`
	OpenTimeout         int  `yaml:"open_timeout"` // seconds
}

// CacheConfig contains settings for the latest-reading Redis cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // seconds
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus/health HTTP listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ControllerConfig tunes the control loop.
type ControllerConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultEnv is the environment used when none is given.
const DefaultEnv = "development"

// Path returns the configuration file for an environment identifier.
//
// Example: Path("configs", "production") -> "configs/production.yaml"
func Path(dir, env string) string {
	if env == "" {
		env = DefaultEnv
	}
	return filepath.Join(dir, env+".yaml")
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: IRRIGATION_SECTION_KEY
// For example: IRRIGATION_MQTT_HOST, IRRIGATION_POSTGRES_URL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// A missing .env is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "irrigation-controller",
			},
			QoS:   1,
			Topic: "garden/sensors",
			Reconnect: MQTTReconnectConfig{
				InitialDelay:    1,
				MaxDelay:        60,
				StartupAttempts: 5,
			},
		},
		Watering: WateringConfig{
			Topic: "garden/watering",
			QoS:   1,
			Policy: PolicyConfig{
				DryThreshold:    20,
				WetThreshold:    60,
				MinMilliseconds: 0,
				MaxMilliseconds: 5000,
			},
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{
				Path:        "./data/irrigation.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         30,
			},
			Timeout: 5,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  86400,
		},
		Metrics: MetricsConfig{
			Host: "0.0.0.0",
			Port: 9100,
		},
		Controller: ControllerConfig{
			QueueSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("IRRIGATION_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IRRIGATION_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("IRRIGATION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IRRIGATION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Storage
	if v := os.Getenv("IRRIGATION_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("IRRIGATION_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("IRRIGATION_POSTGRES_URL"); v != "" {
		cfg.Storage.Postgres.URL = v
	}

	// Cache
	if v := os.Getenv("IRRIGATION_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}

	// InfluxDB
	if v := os.Getenv("IRRIGATION_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together so an operator can fix the file in one pass.
func (c *Config) Validate() error {
	var errs []string

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	r := c.MQTT.Reconnect
	if r.InitialDelay < 1 || r.MaxDelay < r.InitialDelay {
		errs = append(errs, "mqtt.reconnect requires 1 <= initial_delay <= max_delay")
	}

	// Watering
	if c.Watering.Topic == "" {
		errs = append(errs, "watering.topic is required")
	}
	if c.Watering.QoS < 0 || c.Watering.QoS > 2 {
		errs = append(errs, "watering.qos must be 0, 1, or 2")
	}
	// Commands published on a topic the sensor filter covers would be read
	// back as telemetry.
	if c.Watering.Topic != "" && topic.Match(c.MQTT.Topic, c.Watering.Topic) {
		errs = append(errs, "watering.topic must differ from mqtt.topic and not match it")
	}
	p := c.Watering.Policy
	if p.DryThreshold >= p.WetThreshold {
		errs = append(errs, "watering.policy.dry_threshold must be below wet_threshold")
	}
	if p.MinMilliseconds < 0 || p.MaxMilliseconds < p.MinMilliseconds {
		errs = append(errs, "watering.policy requires 0 <= min_milliseconds <= max_milliseconds")
	}

	// Storage
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, "storage.sqlite.path is required")
		}
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, "storage.postgres.url is required (set IRRIGATION_POSTGRES_URL)")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite, postgres)", c.Storage.Driver))
	}

	// Optional integrations
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when cache is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535")
	}

	if c.Controller.QueueSize < 1 {
		errs = append(errs, "controller.queue_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
