package climate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/mqtt"
)

const (
	// CommandHistoryRetention is how long heater commands are kept.
	CommandHistoryRetention = 90 * 24 * time.Hour

	// commandTimeout bounds a remote command, including the heater call it may trigger.
	commandTimeout = 30 * time.Second
)

// CommandBus is the part of the MQTT client the manager needs.
type CommandBus interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// HistoryPruner deletes old command history.
type HistoryPruner interface {
	PruneCommands(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Manager owns every configured thermostat and routes remote commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Manager struct {
	deps   Deps
	bus    CommandBus
	topics mqtt.Topics

	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
	started  bool
}

// NewManager creates a manager. bus may be nil, in which case remote
// commands are not accepted.
func NewManager(deps Deps, bus CommandBus) *Manager {
	return &Manager{
		deps:     deps,
		bus:      bus,
		entities: make(map[string]*Entity),
	}
}

// Add creates the entity for a configured entry.
func (m *Manager) Add(ctx context.Context, cfg config.ThermostatConfig) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entities[cfg.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, cfg.ID)
	}

	e, err := NewEntity(ctx, cfg, m.deps)
	if err != nil {
		return nil, err
	}
	m.entities[cfg.ID] = e
	m.order = append(m.order, cfg.ID)
	return e, nil
}

// Start prunes old command history, starts every entity in the order it
// was added and then subscribes to remote commands. If an entity fails to
// start, those already started are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	entities := m.orderedLocked()
	m.mu.Unlock()

	m.pruneHistory(ctx)

	for i, e := range entities {
		if err := e.Start(ctx); err != nil {
			for _, started := range entities[:i] {
				started.Stop()
			}
			m.resetStarted()
			return err
		}
	}

	if m.bus != nil {
		if err := m.bus.Subscribe(m.topics.AllThermostatCommands(), m.bus.QoS(), m.handleCommand); err != nil {
			for _, e := range entities {
				e.Stop()
			}
			m.resetStarted()
			return fmt.Errorf("subscribing to thermostat commands: %w", err)
		}
	}

	m.logger().Info("thermostats started", "count", len(entities))
	return nil
}

// Stop unsubscribes from remote commands and stops every entity.
func (m *Manager) Stop() {
	m.mu.Lock()
	entities := m.orderedLocked()
	wasStarted := m.started
	m.started = false
	m.mu.Unlock()

	if wasStarted && m.bus != nil {
		if err := m.bus.Unsubscribe(m.topics.AllThermostatCommands()); err != nil {
			m.logger().Warn("unsubscribing from thermostat commands failed", "error", err)
		}
	}

	for _, e := range entities {
		e.Stop()
	}
}

// Entity returns the entity with the given id.
func (m *Manager) Entity(id string) (*Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

// Entities returns all entities in the order they were added.
func (m *Manager) Entities() []*Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderedLocked()
}

// Execute decodes and applies a command for the thermostat with the given id.
func (m *Manager) Execute(ctx context.Context, id string, payload []byte) error {
	e, ok := m.Entity(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	cmd, err := DecodeCommand(payload)
	if err != nil {
		return err
	}

	e.logger.Debug("remote command", "command", cmd.Command)
	if err := e.Apply(ctx, cmd); err != nil {
		return fmt.Errorf("thermostat %s: %s: %w", id, cmd.Command, err)
	}
	return nil
}

// handleCommand is the MQTT handler for graylogic/core/thermostat/+/command.
func (m *Manager) handleCommand(topic string, payload []byte) error {
	id, ok := m.topics.ParseThermostatCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return m.Execute(ctx, id, payload)
}

func (m *Manager) pruneHistory(ctx context.Context) {
	pruner, ok := m.deps.Store.(HistoryPruner)
	if !ok {
		return
	}
	deleted, err := pruner.PruneCommands(ctx, CommandHistoryRetention)
	if err != nil {
		m.logger().Warn("pruning command history failed", "error", err)
		return
	}
	if deleted > 0 {
		m.logger().Info("pruned command history", "deleted", deleted)
	}
}

func (m *Manager) resetStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
}

func (m *Manager) orderedLocked() []*Entity {
	out := make([]*Entity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entities[id])
	}
	return out
}

func (m *Manager) logger() Logger {
	if m.deps.Logger == nil {
		return noopLogger{}
	}
	return m.deps.Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
