// Package climate binds thermostat controllers to the rest of the service.
//
// Each configured entry becomes an Entity: a thermostat.Controller whose
// state changes are saved as snapshots in SQLite, published retained on
// graylogic/core/thermostat/{id}/state and written to InfluxDB, and whose
// heater commands are kept in a command history. The Manager starts every
// entity and routes remote commands arriving on
// graylogic/core/thermostat/{id}/command.
//
// Options set remotely are layered over the stored runtime options and
// persisted before the controller applies them, so they survive restarts.
package climate
