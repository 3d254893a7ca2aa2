package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
statebus:
  ready_delay: 500ms
  command_timeout: 3s
thermostats:
  - name: "Hall"
    temp_sensor_entity_id: "sensor.hall_floor"
    heater_switch_entity_id: "switch.hall_heater"
    hysteresis: 0.4
    target_temp: 21.5
    master_enabled: false
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.StateBus.ReadyDelay != 500*time.Millisecond {
		t.Errorf("StateBus.ReadyDelay = %v, want 500ms", cfg.StateBus.ReadyDelay)
	}
	if cfg.StateBus.CommandTimeout != 3*time.Second {
		t.Errorf("StateBus.CommandTimeout = %v, want 3s", cfg.StateBus.CommandTimeout)
	}

	if len(cfg.Thermostats) != 1 {
		t.Fatalf("len(Thermostats) = %d, want 1", len(cfg.Thermostats))
	}
	th := cfg.Thermostats[0]
	if th.ID != "varmegolv_kontroll_hall" {
		t.Errorf("ID = %q, want derived id", th.ID)
	}
	if th.Version != CurrentEntryVersion {
		t.Errorf("Version = %d, want %d", th.Version, CurrentEntryVersion)
	}
	if th.Hysteresis == nil || *th.Hysteresis != 0.4 {
		t.Errorf("Hysteresis = %v, want 0.4", th.Hysteresis)
	}
	if th.MasterEnabled == nil || *th.MasterEnabled {
		t.Errorf("MasterEnabled = %v, want false", th.MasterEnabled)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DuplicateThermostatNames(t *testing.T) {
	content := `
thermostats:
  - name: "Bad Rum"
    temp_sensor_entity_id: "sensor.a"
    heater_switch_entity_id: "switch.a"
  - name: "bad  rum"
    temp_sensor_entity_id: "sensor.b"
    heater_switch_entity_id: "switch.b"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for duplicate entry ids, got nil")
	}
	if !strings.Contains(err.Error(), "already configured") {
		t.Errorf("error = %v, want duplicate id message", err)
	}
}

func TestLoad_MigratesVersionOneEntries(t *testing.T) {
	content := `
thermostats:
  - version: 1
    temp_sensor_entity_id: "sensor.kitchen"
    heater_switch_entity_id: "switch.kitchen"
    thermostat_entity_id: "climate.old_kitchen"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	th := cfg.Thermostats[0]
	if th.Version != CurrentEntryVersion {
		t.Errorf("Version = %d, want %d", th.Version, CurrentEntryVersion)
	}
	if th.LegacyThermostatEntityID != "" {
		t.Errorf("LegacyThermostatEntityID = %q, want empty", th.LegacyThermostatEntityID)
	}
	if th.Name != DefaultEntryName {
		t.Errorf("Name = %q, want %q", th.Name, DefaultEntryName)
	}
	if th.TargetTemp == nil || *th.TargetTemp != DefaultTargetTemp {
		t.Errorf("TargetTemp = %v, want %v", th.TargetTemp, DefaultTargetTemp)
	}
	if th.ID != "varmegolv_kontroll_golvvarmekontroll" {
		t.Errorf("ID = %q", th.ID)
	}
}

func TestConfig_Validate(t *testing.T) {
	negative := -0.5

	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Thermostats = []ThermostatConfig{{ID: "varmegolv_kontroll_hall", Name: "Hall"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{name: "zero command timeout", mutate: func(c *Config) { c.StateBus.CommandTimeout = 0 }, wantErr: true},
		{name: "blank thermostat name", mutate: func(c *Config) { c.Thermostats[0].Name = "   " }, wantErr: true},
		{name: "missing thermostat id", mutate: func(c *Config) { c.Thermostats[0].ID = "" }, wantErr: true},
		{
			name:    "negative hysteresis",
			mutate:  func(c *Config) { c.Thermostats[0].Hysteresis = &negative },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.StateBus.CommandTimeout <= 0 {
		t.Error("defaultConfig should have a positive StateBus.CommandTimeout")
	}
}
