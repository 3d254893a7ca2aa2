package thermostat

import (
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"
)

// Defaults applied when neither entry data nor options set a value.
const (
	DefaultHysteresis    = 0.5
	DefaultTargetTemp    = 20.0
	DefaultMasterEnabled = true
)

// Option keys as they appear in entry data, options payloads and storage.
const (
	OptionTempSensor    = "temp_sensor_entity_id"
	OptionHeaterSwitch  = "heater_switch_entity_id"
	OptionHysteresis    = "hysteresis"
	OptionTargetTemp    = "target_temp"
	OptionMasterEnabled = "master_enabled"
	OptionDebugLogging  = "debug_logging"
)

// Options is a sparse set of thermostat settings. A nil field is absent,
// which matters for master_enabled: only an explicit value overrides the
// current mode.
//
// The same type carries both an entry's setup data and its runtime options.
type Options struct {
	TempSensorEntityID   *string  `mapstructure:"temp_sensor_entity_id" json:"temp_sensor_entity_id,omitempty"`
	HeaterSwitchEntityID *string  `mapstructure:"heater_switch_entity_id" json:"heater_switch_entity_id,omitempty"`
	Hysteresis           *float64 `mapstructure:"hysteresis" json:"hysteresis,omitempty"`
	TargetTemp           *float64 `mapstructure:"target_temp" json:"target_temp,omitempty"`
	MasterEnabled        *bool    `mapstructure:"master_enabled" json:"master_enabled,omitempty"`
	DebugLogging         *bool    `mapstructure:"debug_logging" json:"debug_logging,omitempty"`
}

// Config is the effective configuration of one controller epoch.
// It is replaced wholesale when options change.
type Config struct {
	SensorID      string
	ActuatorID    string
	Hysteresis    float64
	TargetTemp    float64
	MasterEnabled bool
	DebugLogging  bool
}

// MergeConfig layers options over entry data over defaults.
func MergeConfig(data, opts Options) Config {
	merged := data.Overlay(opts)

	cfg := Config{
		Hysteresis:    DefaultHysteresis,
		TargetTemp:    DefaultTargetTemp,
		MasterEnabled: DefaultMasterEnabled,
	}
	if merged.TempSensorEntityID != nil {
		cfg.SensorID = *merged.TempSensorEntityID
	}
	if merged.HeaterSwitchEntityID != nil {
		cfg.ActuatorID = *merged.HeaterSwitchEntityID
	}
	if merged.Hysteresis != nil {
		cfg.Hysteresis = *merged.Hysteresis
	}
	if merged.TargetTemp != nil {
		cfg.TargetTemp = *merged.TargetTemp
	}
	if merged.MasterEnabled != nil {
		cfg.MasterEnabled = *merged.MasterEnabled
	}
	if merged.DebugLogging != nil {
		cfg.DebugLogging = *merged.DebugLogging
	}
	return cfg
}

// Overlay returns a copy of o with every field set in top replacing o's.
func (o Options) Overlay(top Options) Options {
	out := o
	if top.TempSensorEntityID != nil {
		out.TempSensorEntityID = top.TempSensorEntityID
	}
	if top.HeaterSwitchEntityID != nil {
		out.HeaterSwitchEntityID = top.HeaterSwitchEntityID
	}
	if top.Hysteresis != nil {
		out.Hysteresis = top.Hysteresis
	}
	if top.TargetTemp != nil {
		out.TargetTemp = top.TargetTemp
	}
	if top.MasterEnabled != nil {
		out.MasterEnabled = top.MasterEnabled
	}
	if top.DebugLogging != nil {
		out.DebugLogging = top.DebugLogging
	}
	return out
}

// WithMasterEnabled returns a copy of o with master_enabled set.
func (o Options) WithMasterEnabled(enabled bool) Options {
	o.MasterEnabled = &enabled
	return o
}

// Validate checks value ranges. Absent fields are valid.
func (o Options) Validate() error {
	if o.Hysteresis != nil {
		h := *o.Hysteresis
		if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
			return fmt.Errorf("%w: hysteresis must be a finite value >= 0, got %v", ErrInvalidOptions, h)
		}
	}
	if o.TargetTemp != nil && !isFinite(*o.TargetTemp) {
		return fmt.Errorf("%w: target_temp must be finite, got %v", ErrInvalidOptions, *o.TargetTemp)
	}
	return nil
}

// DecodeOptions converts a loosely typed options map, as submitted by an
// options form or a remote command, into Options.
//
// Values are converted weakly ("0.5" becomes 0.5, "true" becomes true).
// Unknown keys are rejected.
func DecodeOptions(raw map[string]any) (Options, error) {
	var opts Options

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
