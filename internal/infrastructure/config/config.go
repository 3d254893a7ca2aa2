package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic thermostat service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig         `yaml:"site"`
	Database    DatabaseConfig     `yaml:"database"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig     `yaml:"influxdb"`
	Logging     LoggingConfig      `yaml:"logging"`
	StateBus    StateBusConfig     `yaml:"statebus"`
	Thermostats []ThermostatConfig `yaml:"thermostats"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StateBusConfig controls how the service treats the MQTT bus as its host platform.
type StateBusConfig struct {
	// ReadyDelay is how long to wait after connecting before the bus is
	// considered running, so retained entity states can arrive first.
	// Ignored when a graylogic/system/ready message arrives earlier.
	ReadyDelay time.Duration `yaml:"ready_delay"`

	// CommandTimeout bounds a blocking service call (command published,
	// acknowledgement awaited).
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ThermostatConfig is one configured thermostat entry.
//
// The fields mirror the entry data a user supplies when adding a
// thermostat. Runtime option overrides live in the database and are
// merged on top of these values.
type ThermostatConfig struct {
	// ID is the stable entry identifier. Derived from Name when empty.
	ID string `yaml:"id"`

	// Name is the display name. Required.
	Name string `yaml:"name"`

	// Version is the entry schema version. Version 1 entries are migrated on load.
	Version int `yaml:"version"`

	TempSensorEntityID   string   `yaml:"temp_sensor_entity_id"`
	HeaterSwitchEntityID string   `yaml:"heater_switch_entity_id"`
	Hysteresis           *float64 `yaml:"hysteresis,omitempty"`
	TargetTemp           *float64 `yaml:"target_temp,omitempty"`
	MasterEnabled        *bool    `yaml:"master_enabled,omitempty"`
	DebugLogging         bool     `yaml:"debug_logging"`

	// LegacyThermostatEntityID is only present in version 1 entries and is
	// dropped by migration.
	LegacyThermostatEntityID string `yaml:"thermostat_entity_id,omitempty"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Thermostat entry migration and id derivation
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	for i := range cfg.Thermostats {
		MigrateThermostat(&cfg.Thermostats[i])
		if cfg.Thermostats[i].ID == "" {
			cfg.Thermostats[i].ID = EntryID(cfg.Thermostats[i].Name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/thermostat.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-thermostat",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		StateBus: StateBusConfig{
			ReadyDelay:     2 * time.Second,
			CommandTimeout: 10 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator sees every mistake at once
// rather than fixing them one restart at a time.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.StateBus.CommandTimeout <= 0 {
		errs = append(errs, "statebus.command_timeout must be positive")
	}

	seen := make(map[string]bool, len(c.Thermostats))
	for i, t := range c.Thermostats {
		prefix := fmt.Sprintf("thermostats[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, prefix+".name is required")
		}
		if t.ID == "" {
			errs = append(errs, prefix+".id could not be derived from name")
		} else if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is already configured", prefix, t.ID))
		}
		seen[t.ID] = true
		if t.Hysteresis != nil && *t.Hysteresis < 0 {
			errs = append(errs, prefix+".hysteresis must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
