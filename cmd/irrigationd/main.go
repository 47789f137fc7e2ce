// irrigationd is the irrigation control loop daemon.
//
// It listens for soil telemetry on an MQTT topic, records every reading, and
// publishes a valve run time on the watering topic when the soil is dry
// enough to need it.
//
// Usage:
//
//	irrigationd [-env development] [-config path/to/config.yaml] [-migrate-down]
//
// With -migrate-down the daemon rolls back the newest SQLite migration and
// exits without connecting to the broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/irrigation-core/internal/api"
	"github.com/nerrad567/irrigation-core/internal/controller"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/cache"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/logging"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/metrics"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/postgres"
	"github.com/nerrad567/irrigation-core/internal/storage"
	"github.com/nerrad567/irrigation-core/internal/watering"
	"github.com/nerrad567/irrigation-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// defaultConfigDir holds one YAML file per environment.
const defaultConfigDir = "configs"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is cancelled.
//
// Any error before the control loop is running is a startup error: run
// returns it and nothing is left half-initialised. Once running, per-message
// failures are handled inside the controller and never end the process.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // startup sequence
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	configPath := opts.configPath

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting irrigation controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"storage", cfg.Storage.Driver,
		"level", cfg.Logging.Level,
	)

	if opts.migrateDown {
		return migrateDown(ctx, cfg.Storage, log)
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "irrigation-" + uuid.NewString()[:8]
	}

	m := metrics.New()
	checks := map[string]api.Check{}

	// Persistence
	backend, backendCheck, closeBackend, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage")
		if closeErr := closeBackend(); closeErr != nil {
			log.Error("error closing storage", "error", closeErr)
		}
	}()
	checks["storage"] = backendCheck
	log.Info("storage ready", "driver", backend.Driver())

	var gateway storage.Gateway = backend
	if cfg.Storage.Breaker.Enabled {
		gateway = storage.NewBreaker(gateway, cfg.Storage.Breaker, func(from, to string) {
			log.Warn("storage circuit breaker changed state", "from", from, "to", to)
			m.BreakerState(from, to)
		})
	}

	var observers []storage.Observer

	if cfg.Cache.Enabled {
		cacheClient, cacheErr := cache.Connect(ctx, cfg.Cache)
		if cacheErr != nil {
			return fmt.Errorf("connecting to Redis: %w", cacheErr)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := cacheClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		observers = append(observers, storage.CacheObserver{Cache: cacheClient})
		checks["redis"] = cacheClient.HealthCheck
		log.Info("Redis connected", "addr", cfg.Cache.Addr)
	} else {
		log.Info("Redis cache disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, storage.InfluxObserver{Client: influxClient})
		checks["influxdb"] = influxClient.HealthCheck
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if len(observers) > 0 {
		gateway = storage.NewObserved(gateway, log, observers...)
	}

	policy, err := watering.NewLinearPolicy(cfg.Watering.Policy)
	if err != nil {
		return fmt.Errorf("building watering policy: %w", err)
	}

	// Control loop
	client := mqtt.NewClient(cfg.MQTT)
	client.SetLogger(log)
	// Healthy only once the sensor topic is subscribed in the current session.
	checks["mqtt"] = client.SubscriptionHealthCheck(cfg.MQTT.Topic)

	ctrl, err := controller.New(controller.Options{
		Transport:     client,
		Gateway:       gateway,
		Policy:        policy,
		Logger:        log.With("component", "controller"),
		Metrics:       m,
		SensorTopic:   cfg.MQTT.Topic,
		SensorQoS:     byte(cfg.MQTT.QoS), //nolint:gosec // Validated by config
		WateringTopic: cfg.Watering.Topic,
		WateringQoS:   byte(cfg.Watering.QoS), //nolint:gosec // Validated by config
		QueueSize:     cfg.Controller.QueueSize,
		StoreTimeout:  time.Duration(cfg.Storage.Timeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	client.SetOnConnect(ctrl.OnConnect)
	client.SetOnDisconnect(ctrl.OnDisconnect)

	// The loop runs before the first connect so the initial session's
	// subscription goes through the same path as every reconnect.
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Run(loopCtx) }()
	stopController := sync.OnceFunc(func() {
		stopLoop()
		if loopErr := <-loopDone; loopErr != nil {
			log.Error("controller stopped with error", "error", loopErr)
		}
	})
	defer stopController()

	if err := client.ConnectWithRetry(ctx, cfg.MQTT.Reconnect.StartupAttempts); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if cfg.Metrics.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:  cfg.Metrics,
			Logger:  log,
			Metrics: m,
			Checks:  checks,
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("irrigation controller running",
		"sensor_topic", cfg.MQTT.Topic,
		"watering_topic", cfg.Watering.Topic,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	// Drain the loop before the deferred closes tear down MQTT and storage.
	stopController()
	return nil
}

// options holds the command line after flag and environment resolution.
type options struct {
	configPath  string
	migrateDown bool
}

// parseFlags resolves the configuration file from flags, falling back to
// IRRIGATION_CONFIG and IRRIGATION_ENV.
func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("irrigationd", flag.ContinueOnError)
	env := fs.String("env", os.Getenv("IRRIGATION_ENV"), "environment name; selects configs/<env>.yaml")
	path := fs.String("config", os.Getenv("IRRIGATION_CONFIG"), "explicit configuration file (overrides -env)")
	down := fs.Bool("migrate-down", false, "roll back the newest SQLite migration and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{configPath: *path, migrateDown: *down}
	if opts.configPath == "" {
		opts.configPath = config.Path(defaultConfigDir, *env)
	}
	return opts, nil
}

// openStorage opens and migrates the configured backend.
func openStorage(ctx context.Context, cfg config.StorageConfig, log *logging.Logger) (*storage.SQLStore, api.Check, func() error, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(ctx, migrations.FS, migrations.PostgresDir); err != nil {
			pool.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return storage.NewPostgresStore(pool), pool.HealthCheck, pool.Close, nil

	default:
		db, err := database.Open(cfg.SQLite)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS, migrations.SQLiteDir); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		if err := logMigrationStatus(ctx, db, log); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, nil, err
		}
		return storage.NewSQLiteStore(db), db.HealthCheck, db.Close, nil
	}
}

// migrateDown rolls back the newest applied migration.
func migrateDown(ctx context.Context, cfg config.StorageConfig, log *logging.Logger) error {
	if cfg.Driver == config.DriverPostgres {
		return errors.New("-migrate-down supports the sqlite driver only")
	}

	db, err := database.Open(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Process exits right after

	if err := db.MigrateDown(ctx, migrations.FS, migrations.SQLiteDir); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("rolled back newest migration", "path", cfg.SQLite.Path)
	return logMigrationStatus(ctx, db, log)
}

func logMigrationStatus(ctx context.Context, db *database.DB, log *logging.Logger) error {
	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS, migrations.SQLiteDir)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("schema migrations", "applied", len(applied), "pending", len(pending))
	return nil
}
