package thermostat

import "sync"

// Subscription kinds.
const (
	subSensor   = "sensor"
	subActuator = "actuator"
	subStartup  = "startup"
)

// Subscription is one host subscription held by a SubscriptionManager.
// Cancel runs the host's cancel function at most once.
type Subscription struct {
	kind   string
	target string
	cancel CancelFunc

	once sync.Once
	err  error
}

// Cancel removes the subscription. Further calls return the first result.
func (s *Subscription) Cancel() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.err = s.cancel()
		}
	})
	return s.err
}

// SubscriptionManager owns a controller's host subscriptions.
//
// After Rebuild it holds exactly one subscription per configured entity
// and nothing else. The startup subscription is also kept in a dedicated
// slot so it can be dropped from the set when it fires.
type SubscriptionManager struct {
	host       Host
	logger     Logger
	onSensor   func(StateChange)
	onActuator func(StateChange)

	mu      sync.Mutex
	subs    []*Subscription
	startup *Subscription
}

// NewSubscriptionManager creates a manager that routes sensor and heater
// changes to the given callbacks.
func NewSubscriptionManager(host Host, logger Logger, onSensor, onActuator func(StateChange)) *SubscriptionManager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SubscriptionManager{
		host:       host,
		logger:     logger,
		onSensor:   onSensor,
		onActuator: onActuator,
	}
}

// Rebuild cancels every held subscription, the pending startup one
// included, and subscribes afresh to sensorID and actuatorID. Empty ids are
// skipped. Cancel failures are logged and do not stop the rebuild.
//
// Returns the first subscribe error, after attempting both.
func (m *SubscriptionManager) Rebuild(sensorID, actuatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelAllLocked()

	var firstErr error
	if sensorID != "" {
		if err := m.subscribeLocked(subSensor, sensorID, m.onSensor); err != nil {
			firstErr = err
		}
	}
	if actuatorID != "" {
		if err := m.subscribeLocked(subActuator, actuatorID, m.onActuator); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *SubscriptionManager) subscribeLocked(kind, entityID string, fn func(StateChange)) error {
	cancel, err := m.host.Subscribe(entityID, fn)
	if err != nil {
		m.logger.Error("subscribing to entity failed", "kind", kind, "entity_id", entityID, "error", err)
		return err
	}
	m.subs = append(m.subs, &Subscription{kind: kind, target: entityID, cancel: cancel})
	return nil
}

// RegisterStartupHandle subscribes fn to the host ready signal.
// A previously registered startup subscription is cancelled first.
func (m *SubscriptionManager) RegisterStartupHandle(fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startup != nil {
		m.cancelLocked(m.startup)
		m.removeLocked(m.startup)
		m.startup = nil
	}

	cancel, err := m.host.SubscribeOnce(SignalReady, fn)
	if err != nil {
		m.logger.Error("subscribing to host ready signal failed", "error", err)
		return err
	}

	sub := &Subscription{kind: subStartup, target: SignalReady, cancel: cancel}
	m.subs = append(m.subs, sub)
	m.startup = sub
	return nil
}

// ClearStartupHandle forgets the startup subscription after it has fired.
// Safe to call when nothing is registered.
func (m *SubscriptionManager) ClearStartupHandle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startup == nil {
		return
	}
	m.removeLocked(m.startup)
	m.startup = nil
}

// Teardown cancels everything still held.
func (m *SubscriptionManager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelAllLocked()
}

// Len returns the number of held subscriptions, startup included.
func (m *SubscriptionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// HasStartupHandle reports whether a startup subscription is pending.
func (m *SubscriptionManager) HasStartupHandle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startup != nil
}

// Targets returns the entity ids currently subscribed to, in order.
func (m *SubscriptionManager) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, s := range m.subs {
		if s.kind != subStartup {
			ids = append(ids, s.target)
		}
	}
	return ids
}

func (m *SubscriptionManager) cancelAllLocked() {
	for _, s := range m.subs {
		m.cancelLocked(s)
	}
	// The startup slot normally also sits in subs; Cancel is idempotent.
	if m.startup != nil {
		m.cancelLocked(m.startup)
	}
	m.subs = nil
	m.startup = nil
}

func (m *SubscriptionManager) cancelLocked(s *Subscription) {
	if err := s.Cancel(); err != nil {
		m.logger.Warn("cancelling subscription failed", "kind", s.kind, "target", s.target, "error", err)
	}
}

func (m *SubscriptionManager) removeLocked(target *Subscription) {
	for i, s := range m.subs {
		if s == target {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}
