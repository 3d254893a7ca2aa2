// Package influxdb records thermostat telemetry in InfluxDB.
//
// Two measurements are written:
//   - thermostat: current and target temperature, mode, action and heater state
//   - thermostat_command: every heater turn_on/turn_off and whether it succeeded
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteThermostat(influxdb.ThermostatSample{EntryID: id, HVACMode: "heat"})
//
// Writes are batched and never block the caller. The nil *Client is valid
// and drops everything, so callers need not special-case a disabled sink.
package influxdb
