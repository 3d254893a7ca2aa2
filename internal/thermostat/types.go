package thermostat

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the user-selected HVAC mode.
type Mode string

// Supported modes. Master enabled maps to heat, disabled to off.
const (
	ModeHeat Mode = "heat"
	ModeOff  Mode = "off"
)

// ParseMode converts a mode string, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeHeat:
		return ModeHeat, nil
	case ModeOff:
		return ModeOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// modeFromEnabled maps the master switch to a mode.
func modeFromEnabled(enabled bool) Mode {
	if enabled {
		return ModeHeat
	}
	return ModeOff
}

// Action is what the thermostat is doing right now. It is derived from the
// mode and the observed heater state, never stored.
type Action string

const (
	ActionHeating Action = "heating"
	ActionIdle    Action = "idle"
	ActionOff     Action = "off"
)

// Phase is the controller's lifecycle position.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseRestoring
	PhaseWaitingForHostReady
	PhaseActive
	PhaseStopped
)

// String returns the snake_case phase name used in logs and status payloads.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRestoring:
		return "restoring"
	case PhaseWaitingForHostReady:
		return "waiting_for_host_ready"
	case PhaseActive:
		return "active"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Host entity states with special meaning.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// Host service identifiers used to drive the heater.
const (
	SwitchDomain   = "switch"
	ServiceTurnOn  = "turn_on"
	ServiceTurnOff = "turn_off"

	// SignalReady is the one-shot host signal fired once the host has started.
	SignalReady = "ready"
)

// EntityState is a host entity's state as last reported.
type EntityState struct {
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// StateChange is delivered to entity subscribers. Old or New is nil when
// the entity appeared or disappeared.
type StateChange struct {
	EntityID string
	Old      *EntityState
	New      *EntityState
}

// Snapshot is the state persisted across restarts.
type Snapshot struct {
	TargetTemp *float64
	HVACMode   string
}

// Status is an immutable view of a controller, published after every
// handled event.
type Status struct {
	EntryID     string
	Name        string
	Phase       Phase
	CurrentTemp *float64
	TargetTemp  float64
	Mode        Mode
	Action      Action
	Hysteresis  float64
	SensorID    string
	ActuatorID  string
	Options     Options
	// Evaluations counts control decisions taken while active.
	Evaluations uint64
	UpdatedAt   time.Time
}
