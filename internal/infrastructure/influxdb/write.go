package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementThermostat = "thermostat"
	measurementCommand    = "thermostat_command"
)

// ThermostatSample is one observation of a thermostat's state.
// Nil pointers are omitted from the written point.
type ThermostatSample struct {
	EntryID     string
	Name        string
	CurrentTemp *float64
	TargetTemp  *float64
	HVACMode    string
	HVACAction  string
	HeaterOn    *bool
	Time        time.Time
}

// CommandSample records one actuator command and its outcome.
type CommandSample struct {
	EntryID   string
	EntityID  string
	Service   string
	DesiredOn bool
	Success   bool
	Time      time.Time
}

// WriteThermostat records a thermostat state sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteThermostat(influxdb.ThermostatSample{
//	    EntryID:    "varmegolv_kontroll_hall",
//	    HVACMode:   "heat",
//	    HVACAction: "heating",
//	})
func (c *Client) WriteThermostat(s ThermostatSample) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(thermostatPoint(s))
}

// WriteCommand records an actuator command outcome.
func (c *Client) WriteCommand(s CommandSample) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(commandPoint(s))
}

func thermostatPoint(s ThermostatSample) *write.Point {
	fields := map[string]interface{}{
		"hvac_mode":   s.HVACMode,
		"hvac_action": s.HVACAction,
	}
	if s.CurrentTemp != nil {
		fields["current_temp"] = *s.CurrentTemp
	}
	if s.TargetTemp != nil {
		fields["target_temp"] = *s.TargetTemp
	}
	if s.HeaterOn != nil {
		fields["heater_on"] = *s.HeaterOn
	}

	return write.NewPoint(
		measurementThermostat,
		map[string]string{
			"entry_id": s.EntryID,
			"name":     s.Name,
		},
		fields,
		sampleTime(s.Time),
	)
}

func commandPoint(s CommandSample) *write.Point {
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"entry_id":  s.EntryID,
			"entity_id": s.EntityID,
			"service":   s.Service,
		},
		map[string]interface{}{
			"desired_on": s.DesiredOn,
			"success":    s.Success,
		},
		sampleTime(s.Time),
	)
}

func sampleTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
