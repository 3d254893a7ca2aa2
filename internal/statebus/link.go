package statebus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

// CommandSource identifies this service in published commands.
const CommandSource = "graylogic-thermostat"

// Acknowledgement statuses reported by bridges.
const (
	AckStatusOK    = "ok"
	AckStatusError = "error"
)

// MQTTClient is the subset of the MQTT client the link needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// LinkConfig controls the link's timing.
type LinkConfig struct {
	// ReadyDelay marks the bus running this long after Start unless a
	// ready message arrives first. Zero marks it running immediately.
	ReadyDelay time.Duration

	// CommandTimeout bounds the wait for a command acknowledgement.
	CommandTimeout time.Duration
}

// CommandMessage is published to a device's command topic.
type CommandMessage struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	EntityID  string    `json:"entity_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// AckMessage is published by a bridge once a command has been handled.
type AckMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// stateMessage is the retained payload of an entity state topic.
type stateMessage struct {
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// MQTTLink feeds a Bus from the MQTT bus and carries its service calls.
//
// Entity states arrive on retained device state topics. Service calls are
// published as commands and complete when the matching acknowledgement
// (correlated by command ID) arrives.
type MQTTLink struct {
	bus    *Bus
	client MQTTClient
	cfg    LinkConfig
	topics mqtt.Topics
	logger Logger

	mu         sync.Mutex
	pending    map[string]chan AckMessage
	readyTimer *time.Timer
	started    bool
	stopped    bool
}

// NewMQTTLink creates a link between bus and client.
func NewMQTTLink(bus *Bus, client MQTTClient, cfg LinkConfig, logger Logger) *MQTTLink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTLink{
		bus:     bus,
		client:  client,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan AckMessage),
	}
}

// Start subscribes to entity states, acknowledgements and the ready
// signal, and attaches the link as the bus's Caller.
func (l *MQTTLink) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	qos := l.client.QoS()
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{l.topics.AllEntityStates(), l.handleState},
		{l.topics.AllAcks(), l.handleAck},
		{l.topics.SystemReady(), l.handleReady},
	}
	for _, s := range subs {
		if err := l.client.Subscribe(s.topic, qos, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	l.bus.SetCaller(l)

	if l.cfg.ReadyDelay <= 0 {
		l.bus.MarkRunning()
		return nil
	}

	l.mu.Lock()
	l.readyTimer = time.AfterFunc(l.cfg.ReadyDelay, func() {
		l.logger.Debug("ready delay elapsed")
		l.bus.MarkRunning()
	})
	l.mu.Unlock()
	return nil
}

// Stop unsubscribes and fails all calls still waiting for an acknowledgement.
func (l *MQTTLink) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	if l.readyTimer != nil {
		l.readyTimer.Stop()
	}
	pending := l.pending
	l.pending = make(map[string]chan AckMessage)
	l.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	for _, topic := range []string{l.topics.AllEntityStates(), l.topics.AllAcks(), l.topics.SystemReady()} {
		if err := l.client.Unsubscribe(topic); err != nil {
			l.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Call publishes a command for entityID and waits for its acknowledgement.
//
// Parameters:
//   - ctx: bounds the wait in addition to the configured command timeout
//   - domain, service: the service to invoke (e.g. "switch", "turn_on")
//   - entityID: the target entity
//
// Returns:
//   - string: the entity state reported by the acknowledgement, or ""
//   - error: ErrCommandTimeout, ErrCommandRejected, ErrLinkStopped or a publish error
func (l *MQTTLink) Call(ctx context.Context, domain, service, entityID string) (string, error) {
	msg := CommandMessage{
		ID:        uuid.NewString(),
		Service:   service,
		EntityID:  entityID,
		Source:    CommandSource,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshalling command: %w", err)
	}

	ch := make(chan AckMessage, 1)
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return "", ErrLinkStopped
	}
	l.pending[msg.ID] = ch
	l.mu.Unlock()
	defer l.forget(msg.ID)

	if err := l.client.Publish(l.topics.Command(domain, entityID), payload, l.client.QoS(), false); err != nil {
		return "", fmt.Errorf("publishing %s.%s for %s: %w", domain, service, entityID, err)
	}

	if l.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.CommandTimeout)
		defer cancel()
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return "", ErrLinkStopped
		}
		if ack.Status != AckStatusOK {
			return "", fmt.Errorf("%w: %s.%s for %s: %s", ErrCommandRejected, domain, service, entityID, ack.Error)
		}
		return ack.State, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s.%s for %s", ErrCommandTimeout, domain, service, entityID)
		}
		return "", ctx.Err()
	}
}

// PendingCount returns the number of calls waiting for an acknowledgement.
func (l *MQTTLink) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *MQTTLink) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
}

// handleState ingests a retained entity state. An empty payload clears
// the entity; a payload that is not a JSON object is taken as the bare state.
func (l *MQTTLink) handleState(topic string, payload []byte) error {
	entityID, ok := l.topics.ParseEntityState(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected state topic %s", ErrInvalidPayload, topic)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		l.bus.RemoveState(entityID)
		return nil
	}

	if trimmed[0] != '{' {
		l.bus.SetState(entityID, thermostat.EntityState{State: string(trimmed)})
		return nil
	}

	var msg stateMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return fmt.Errorf("%w: state for %s: %v", ErrInvalidPayload, entityID, err)
	}
	l.bus.SetState(entityID, thermostat.EntityState{
		State:       msg.State,
		Attributes:  msg.Attributes,
		LastUpdated: msg.LastUpdated,
	})
	return nil
}

func (l *MQTTLink) handleAck(topic string, payload []byte) error {
	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: ack on %s: %v", ErrInvalidPayload, topic, err)
	}
	if ack.ID == "" {
		return fmt.Errorf("%w: ack on %s without id", ErrInvalidPayload, topic)
	}

	l.mu.Lock()
	ch, ok := l.pending[ack.ID]
	if ok {
		delete(l.pending, ack.ID)
	}
	l.mu.Unlock()

	if !ok {
		// Not ours, or already timed out.
		return nil
	}
	ch <- ack
	return nil
}

func (l *MQTTLink) handleReady(_ string, _ []byte) error {
	l.mu.Lock()
	if l.readyTimer != nil {
		l.readyTimer.Stop()
	}
	l.mu.Unlock()

	l.bus.MarkRunning()
	return nil
}
