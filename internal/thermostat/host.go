package thermostat

import "context"

// CancelFunc removes a subscription. Implementations must tolerate being
// called more than once and from inside the subscription's own callback.
type CancelFunc func() error

// Host is the platform a controller runs on: it supplies entity states,
// change notifications, the ready signal and the service channel used to
// drive the heater.
type Host interface {
	// Subscribe registers fn for state changes of entityID.
	Subscribe(entityID string, fn func(StateChange)) (CancelFunc, error)

	// SubscribeOnce registers fn to run once when signal fires.
	SubscribeOnce(signal string, fn func()) (CancelFunc, error)

	// State returns the last known state of entityID.
	State(entityID string) (EntityState, bool)

	// CallService invokes a service on entityID and blocks until the host
	// reports completion.
	CallService(ctx context.Context, domain, service, entityID string) error

	// IsRunning reports whether the host has finished starting.
	IsRunning() bool
}

// Store persists per-entry thermostat state.
type Store interface {
	// LoadSnapshot returns the last saved snapshot, or nil when none exists.
	LoadSnapshot(ctx context.Context, entryID string) (*Snapshot, error)

	// UpdateOptions replaces the stored runtime options of an entry.
	UpdateOptions(ctx context.Context, entryID string, opts Options) error
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
