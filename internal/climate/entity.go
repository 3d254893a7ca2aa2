package climate

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

// persistTimeout bounds each store write made on behalf of a controller.
const persistTimeout = 5 * time.Second

// Publisher publishes JSON payloads to the message bus.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Telemetry receives time-series samples.
type Telemetry interface {
	WriteThermostat(s influxdb.ThermostatSample)
	WriteCommand(s influxdb.CommandSample)
}

// Deps are the collaborators shared by every entity.
type Deps struct {
	Host      thermostat.Host
	Store     Store
	Publisher Publisher
	// Telemetry is optional.
	Telemetry Telemetry
	Logger    *logging.Logger
}

// StatePayload is the retained thermostat state published on
// graylogic/core/thermostat/{id}/state.
type StatePayload struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Phase                string    `json:"phase"`
	CurrentTemperature   *float64  `json:"current_temperature"`
	TargetTemperature    float64   `json:"target_temperature"`
	HVACMode             string    `json:"hvac_mode"`
	HVACAction           string    `json:"hvac_action"`
	HVACModes            []string  `json:"hvac_modes"`
	Hysteresis           float64   `json:"hysteresis"`
	TempSensorEntityID   string    `json:"temp_sensor_entity_id"`
	HeaterSwitchEntityID string    `json:"heater_switch_entity_id"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Entity is one configured thermostat bound to the message bus, the
// store and telemetry.
type Entity struct {
	ctrl      *thermostat.Controller
	host      thermostat.Host
	store     Store
	publisher Publisher
	telemetry Telemetry
	logger    *logging.Logger
	debug     *logging.DebugSwitch
	topics    mqtt.Topics
}

// NewEntity builds the controller for a configured entry. Stored runtime
// options are loaded and layered over the entry's configured values.
//
// Parameters:
//   - ctx: Context for loading stored options
//   - cfg: The entry, already migrated and with its id derived
//   - deps: Shared collaborators
//
// Returns:
//   - *Entity: Entity ready to Start
//   - error: If stored options cannot be loaded
func NewEntity(ctx context.Context, cfg config.ThermostatConfig, deps Deps) (*Entity, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("thermostat %q: entry id is required", cfg.Name)
	}

	opts, err := deps.Store.LoadOptions(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("loading options for %s: %w", cfg.ID, err)
	}

	base := deps.Logger
	if base == nil {
		base = logging.Default()
	}
	sw := &logging.DebugSwitch{}
	logger := base.With("thermostat", cfg.ID).WithDebugSwitch(sw)

	e := &Entity{
		host:      deps.Host,
		store:     deps.Store,
		publisher: deps.Publisher,
		telemetry: deps.Telemetry,
		logger:    logger,
		debug:     sw,
	}

	e.ctrl = thermostat.NewController(thermostat.Entry{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Data:    EntryData(cfg),
		Options: opts,
	}, deps.Host, deps.Store, logger)
	e.ctrl.SetDebugHandler(sw.Set)
	e.ctrl.SetCommandObserver(e)
	e.ctrl.OnStateChanged(e.stateChanged)

	return e, nil
}

// EntryData converts a configured entry to the controller's setup data.
// Absent numeric and boolean fields stay absent so defaults apply.
func EntryData(cfg config.ThermostatConfig) thermostat.Options {
	data := thermostat.Options{
		Hysteresis:    cfg.Hysteresis,
		TargetTemp:    cfg.TargetTemp,
		MasterEnabled: cfg.MasterEnabled,
	}
	if cfg.TempSensorEntityID != "" {
		sensor := cfg.TempSensorEntityID
		data.TempSensorEntityID = &sensor
	}
	if cfg.HeaterSwitchEntityID != "" {
		heater := cfg.HeaterSwitchEntityID
		data.HeaterSwitchEntityID = &heater
	}
	if cfg.DebugLogging {
		debug := true
		data.DebugLogging = &debug
	}
	return data
}

// ID returns the entry id.
func (e *Entity) ID() string { return e.ctrl.ID() }

// Controller returns the underlying controller.
func (e *Entity) Controller() *thermostat.Controller { return e.ctrl }

// DebugEnabled reports whether forced debug logging is on.
func (e *Entity) DebugEnabled() bool { return e.debug.Enabled() }

// Start starts the controller and publishes its initial state.
func (e *Entity) Start(ctx context.Context) error {
	if err := e.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("starting thermostat %s: %w", e.ID(), err)
	}
	e.publishState(e.ctrl.Status())
	return nil
}

// Stop stops the controller.
func (e *Entity) Stop() {
	e.ctrl.Stop()
}

// SetOptions overlays changes on the current runtime options, persists
// the result and applies it. The controller does all three in order with
// its other events.
func (e *Entity) SetOptions(ctx context.Context, changes thermostat.Options) error {
	return e.ctrl.MergeOptions(ctx, changes)
}

// ActuatorCommanded records a heater command in the history and telemetry.
func (e *Entity) ActuatorCommanded(rec thermostat.CommandRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.store.RecordCommand(ctx, e.ID(), rec); err != nil {
		e.logger.Error("recording heater command failed", "error", err)
	}

	if e.telemetry != nil {
		e.telemetry.WriteCommand(influxdb.CommandSample{
			EntryID:   e.ID(),
			EntityID:  rec.EntityID,
			Service:   rec.Service,
			DesiredOn: rec.DesiredOn,
			Success:   rec.Err == nil,
			Time:      rec.IssuedAt,
		})
	}
}

// stateChanged persists the snapshot, publishes the state and writes a
// telemetry sample. It runs on the controller goroutine.
func (e *Entity) stateChanged(s thermostat.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	target := s.TargetTemp
	if err := e.store.SaveSnapshot(ctx, s.EntryID, thermostat.Snapshot{
		TargetTemp: &target,
		HVACMode:   string(s.Mode),
	}); err != nil {
		e.logger.Error("saving snapshot failed", "error", err)
	}

	e.publishState(s)

	if e.telemetry != nil {
		sample := influxdb.ThermostatSample{
			EntryID:     s.EntryID,
			Name:        s.Name,
			CurrentTemp: s.CurrentTemp,
			TargetTemp:  &target,
			HVACMode:    string(s.Mode),
			HVACAction:  string(s.Action),
			Time:        s.UpdatedAt,
		}
		if hs, ok := e.host.State(s.ActuatorID); ok {
			on := hs.State == thermostat.StateOn
			sample.HeaterOn = &on
		}
		e.telemetry.WriteThermostat(sample)
	}
}

func (e *Entity) publishState(s thermostat.Status) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishJSON(e.topics.ThermostatState(s.EntryID), NewStatePayload(s), true); err != nil {
		e.logger.Warn("publishing thermostat state failed", "error", err)
	}
}

// NewStatePayload builds the published form of a status.
func NewStatePayload(s thermostat.Status) StatePayload {
	return StatePayload{
		ID:                   s.EntryID,
		Name:                 s.Name,
		Phase:                s.Phase.String(),
		CurrentTemperature:   s.CurrentTemp,
		TargetTemperature:    s.TargetTemp,
		HVACMode:             string(s.Mode),
		HVACAction:           string(s.Action),
		HVACModes:            []string{string(thermostat.ModeHeat), string(thermostat.ModeOff)},
		Hysteresis:           s.Hysteresis,
		TempSensorEntityID:   s.SensorID,
		HeaterSwitchEntityID: s.ActuatorID,
		UpdatedAt:            s.UpdatedAt,
	}
}
