// Gray Logic Thermostat - hysteresis heating control on the Gray Logic bus.
//
// Each configured thermostat reads a floor temperature sensor and drives a
// heater switch through the MQTT bus, keeping the temperature within a
// band around its set-point. Set-points, modes and options survive
// restarts through the local SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-thermostat/migrations"

	"github.com/nerrad567/gray-logic-thermostat/internal/climate"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-thermostat/internal/statebus"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence with deferred teardown
	log := logging.Default()
	log.Info("starting Gray Logic Thermostat",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "thermostats", len(cfg.Thermostats))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(ctx, cfg.InfluxDB, log)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	bus := statebus.New()
	bus.SetLogger(log.With("component", "statebus"))
	link := statebus.NewMQTTLink(bus, mqttClient, statebus.LinkConfig{
		ReadyDelay:     cfg.StateBus.ReadyDelay,
		CommandTimeout: cfg.StateBus.CommandTimeout,
	}, log.With("component", "statebus"))
	if startErr := link.Start(); startErr != nil {
		return fmt.Errorf("starting state bus: %w", startErr)
	}
	defer func() {
		log.Info("stopping state bus")
		link.Stop()
	}()
	log.Info("state bus linked", "ready_delay", cfg.StateBus.ReadyDelay)

	deps := climate.Deps{
		Host:      bus,
		Store:     climate.NewSQLiteStore(db.DB),
		Publisher: mqttClient,
		Logger:    log,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	manager := climate.NewManager(deps, mqttClient)
	for _, t := range cfg.Thermostats {
		if _, addErr := manager.Add(ctx, t); addErr != nil {
			return fmt.Errorf("adding thermostat %s: %w", t.ID, addErr)
		}
	}
	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting thermostats: %w", startErr)
	}
	defer func() {
		log.Info("stopping thermostats")
		manager.Stop()
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: thermostats, state bus,
	// InfluxDB (if enabled), MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. It returns a nil
// client without error when telemetry is disabled.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, err
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
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

	return nil
}
