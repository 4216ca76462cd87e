// Nexia Bridge - mynexia.com thermostat cloud bridge
//
// This is the main entry point for the Nexia bridge daemon. The bridge
// signs in to the mynexia.com cloud service, polls the house snapshot on a
// fixed cadence, and exposes the thermostats and zones three ways:
//   - Retained MQTT state topics plus a command/ack channel
//   - A local REST API over the cached snapshot
//   - Zone reading history in SQLite, optionally mirrored to InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-nexia/migrations"

	"github.com/nerrad567/gray-logic-nexia/internal/api"
	"github.com/nerrad567/gray-logic-nexia/internal/bridge"
	"github.com/nerrad567/gray-logic-nexia/internal/history"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
	"github.com/nerrad567/gray-logic-nexia/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Nexia bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Create the cloud client. The session token store means a restart
	// reuses the previous login instead of consuming an attempt; the
	// service locks accounts after repeated sign-ins.
	client, err := nexia.New(nexia.Config{
		Username:       cfg.Nexia.Username,
		Password:       cfg.Nexia.Password,
		HouseID:        cfg.Nexia.HouseID,
		BaseURL:        cfg.Nexia.BaseURL,
		UpdateInterval: updateInterval(cfg),
		TokenStore:     session.NewStore(db.DB),
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating nexia client: %w", err)
	}

	// Sign in up front so credential problems fail the startup instead of
	// surfacing on the first poll.
	if loginErr := client.Login(ctx); loginErr != nil {
		return fmt.Errorf("logging in to nexia: %w", loginErr)
	}
	log.Info("nexia session established", "house_id", client.HouseID())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Zone reading history shares the bridge database
	readings := history.NewSQLiteRepository(db.DB)

	// Start the bridge
	b, err := startBridge(ctx, cfg, client, mqttClient, readings, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		if stopErr := b.Stop(); stopErr != nil {
			log.Error("error stopping bridge", "error", stopErr)
		}
	}()

	// Start the local REST API (if enabled)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Client:   client,
			Readings: readings,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Nexia bridge stopped")
	return nil
}

// startBridge assembles and starts the MQTT bridge.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - client: Authenticated cloud client
//   - mqttClient: Connected MQTT client
//   - readings: Zone reading repository
//   - influxClient: InfluxDB client (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *bridge.Bridge: Running bridge
//   - error: If the bridge fails to start
func startBridge(ctx context.Context, cfg *config.Config, client *nexia.Client, mqttClient *mqtt.Client, readings history.Repository, influxClient *influxdb.Client, log *logging.Logger) (*bridge.Bridge, error) {
	opts := bridge.Options{
		Client:       client,
		MQTT:         mqttClient,
		Readings:     readings,
		Logger:       log,
		Version:      version,
		PollInterval: cfg.GetPollInterval(),
		Retention:    time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
	}
	// A zero configured interval means manual refresh only; a negative
	// option value is what keeps the poll loop off.
	if opts.PollInterval == 0 {
		opts.PollInterval = -1
	}
	// Assign only a non-nil client; a typed nil would make the interface
	// value non-nil and every write would panic.
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	b, err := bridge.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started",
		"poll_interval", cfg.GetPollInterval(),
		"retention_days", cfg.History.RetentionDays,
	)
	return b, nil
}

// updateInterval maps the configured poll interval to the cloud client's
// snapshot staleness window. Zero means manual refresh only.
func updateInterval(cfg *config.Config) time.Duration {
	if cfg.Nexia.PollInterval == 0 {
		return nexia.UpdateManual
	}
	return cfg.GetPollInterval()
}

// getConfigPath returns the configuration file path.
// Uses NEXIABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEXIABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bridge health is verified during Start() - it subscribes to the
	// command topic and performs the first poll before returning.

	return nil
}
