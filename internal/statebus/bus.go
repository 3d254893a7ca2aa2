package statebus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

// Caller delivers a service call to the device that owns entityID and
// waits for it to complete.
//
// Returns:
//   - string: the entity state reported with the acknowledgement, or ""
//   - error: if the call could not be delivered or was rejected
type Caller interface {
	Call(ctx context.Context, domain, service, entityID string) (string, error)
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

var _ thermostat.Host = (*Bus)(nil)

// Bus caches entity states and dispatches changes to subscribers.
// It is the thermostat's Host; a Caller (usually an MQTTLink) attaches
// the service channel.
//
// Callbacks run on the goroutine that reported the change, outside any
// lock, so they may cancel their own subscription.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Bus struct {
	mu     sync.RWMutex
	states map[string]thermostat.EntityState
	subs   map[string]map[uint64]func(thermostat.StateChange)
	once   map[string]map[uint64]func()
	fired  map[string]bool
	nextID uint64
	caller Caller

	running atomic.Bool
	logger  Logger
}

// New creates an empty bus. The bus is not running until MarkRunning.
func New() *Bus {
	return &Bus{
		states: make(map[string]thermostat.EntityState),
		subs:   make(map[string]map[uint64]func(thermostat.StateChange)),
		once:   make(map[string]map[uint64]func()),
		fired:  make(map[string]bool),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for callback failures.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// SetCaller attaches the transport used by CallService.
func (b *Bus) SetCaller(c Caller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caller = c
}

// Subscribe registers fn for changes of entityID.
func (b *Bus) Subscribe(entityID string, fn func(thermostat.StateChange)) (thermostat.CancelFunc, error) {
	if entityID == "" {
		return nil, fmt.Errorf("statebus: subscribe: empty entity id")
	}
	if fn == nil {
		return nil, fmt.Errorf("statebus: subscribe: nil callback")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[entityID] == nil {
		b.subs[entityID] = make(map[uint64]func(thermostat.StateChange))
	}
	b.subs[entityID][id] = fn

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[entityID], id)
		if len(b.subs[entityID]) == 0 {
			delete(b.subs, entityID)
		}
		return nil
	}, nil
}

// SubscribeOnce registers fn to run the next time signal fires. If the
// signal has already fired, fn runs immediately on a new goroutine.
func (b *Bus) SubscribeOnce(signal string, fn func()) (thermostat.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("statebus: subscribe once: nil callback")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fired[signal] {
		go b.safeInvoke(signal, fn)
		return func() error { return nil }, nil
	}

	b.nextID++
	id := b.nextID
	if b.once[signal] == nil {
		b.once[signal] = make(map[uint64]func())
	}
	b.once[signal][id] = fn

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.once[signal], id)
		return nil
	}, nil
}

// Fire fires a one-shot signal. Later SubscribeOnce calls for the same
// signal run immediately.
func (b *Bus) Fire(signal string) {
	b.mu.Lock()
	if b.fired[signal] {
		b.mu.Unlock()
		return
	}
	b.fired[signal] = true
	pending := b.once[signal]
	delete(b.once, signal)
	b.mu.Unlock()

	for _, fn := range pending {
		b.safeInvoke(signal, fn)
	}
}

// MarkRunning marks the host as started and fires the ready signal.
func (b *Bus) MarkRunning() {
	if b.running.Swap(true) {
		return
	}
	b.getLogger().Info("state bus running")
	b.Fire(thermostat.SignalReady)
}

// IsRunning reports whether MarkRunning has been called.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// State returns the cached state of entityID.
func (b *Bus) State(entityID string) (thermostat.EntityState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.states[entityID]
	return s, ok
}

// SetState records a new state and notifies subscribers if the state or
// its attributes changed. Subscribers run on the calling goroutine.
func (b *Bus) SetState(entityID string, s thermostat.EntityState) {
	if ch, fns, ok := b.apply(entityID, s); ok {
		b.notify(fns, ch)
	}
}

// apply stores s and returns the change to deliver, if any.
func (b *Bus) apply(entityID string, s thermostat.EntityState) (thermostat.StateChange, []func(thermostat.StateChange), bool) {
	if s.LastUpdated.IsZero() {
		s.LastUpdated = time.Now().UTC()
	}

	b.mu.Lock()
	var old *thermostat.EntityState
	if prev, ok := b.states[entityID]; ok {
		if prev.State == s.State && reflect.DeepEqual(prev.Attributes, s.Attributes) {
			b.states[entityID] = s
			b.mu.Unlock()
			return thermostat.StateChange{}, nil, false
		}
		old = &prev
	}
	b.states[entityID] = s
	fns := b.subscribersLocked(entityID)
	b.mu.Unlock()

	return thermostat.StateChange{EntityID: entityID, Old: old, New: &s}, fns, true
}

// RemoveState forgets entityID and notifies subscribers with a nil New state.
func (b *Bus) RemoveState(entityID string) {
	b.mu.Lock()
	prev, ok := b.states[entityID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.states, entityID)
	fns := b.subscribersLocked(entityID)
	b.mu.Unlock()

	b.notify(fns, thermostat.StateChange{EntityID: entityID, Old: &prev})
}

// CallService forwards a service call to the attached Caller. On success
// the entity's cached state is updated before returning: the state from
// the acknowledgement if one was reported, else the state the service
// implies. Callers therefore never see their own command as pending.
//
// Subscribers learn of that change on a separate goroutine, since the
// caller is typically a controller that is itself subscribed.
func (b *Bus) CallService(ctx context.Context, domain, service, entityID string) error {
	b.mu.RLock()
	caller := b.caller
	b.mu.RUnlock()

	if caller == nil {
		return ErrNoCaller
	}

	reported, err := caller.Call(ctx, domain, service, entityID)
	if err != nil {
		return err
	}

	next := reported
	if next == "" {
		next = impliedState(service)
	}
	if next != "" {
		prev, _ := b.State(entityID)
		if ch, fns, ok := b.apply(entityID, thermostat.EntityState{State: next, Attributes: prev.Attributes}); ok {
			go b.notify(fns, ch)
		}
	}
	return nil
}

// impliedState maps on/off services to the state they produce.
func impliedState(service string) string {
	switch service {
	case thermostat.ServiceTurnOn:
		return thermostat.StateOn
	case thermostat.ServiceTurnOff:
		return thermostat.StateOff
	default:
		return ""
	}
}

// EntityCount returns the number of cached entities.
func (b *Bus) EntityCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.states)
}

// SubscriberCount returns the number of subscriptions for entityID.
func (b *Bus) SubscriberCount(entityID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[entityID])
}

func (b *Bus) subscribersLocked(entityID string) []func(thermostat.StateChange) {
	fns := make([]func(thermostat.StateChange), 0, len(b.subs[entityID]))
	for _, fn := range b.subs[entityID] {
		fns = append(fns, fn)
	}
	return fns
}

func (b *Bus) notify(fns []func(thermostat.StateChange), ch thermostat.StateChange) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.getLogger().Error("state subscriber panic recovered", "entity_id", ch.EntityID, "panic", r)
				}
			}()
			fn(ch)
		}()
	}
}

func (b *Bus) safeInvoke(signal string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogger().Error("signal subscriber panic recovered", "signal", signal, "panic", r)
		}
	}()
	fn()
}

func (b *Bus) getLogger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}
