// Package config handles loading and validating the Gray Logic thermostat configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Migrating and validating thermostat entries
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, t := range cfg.Thermostats {
//	    fmt.Println(t.ID, t.Name)
//	}
//
// Thermostat entries are identified by a slug derived from their name
// (see EntryID). Entries written by older releases (version 1) are upgraded
// in memory on every load; the file itself is never rewritten.
package config
