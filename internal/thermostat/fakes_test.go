package thermostat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type serviceCall struct {
	Domain   string
	Service  string
	EntityID string
}

// fakeHost is an in-memory Host. Service calls on switches update the
// switch state and notify subscribers, as the real bus does on ack.
type fakeHost struct {
	mu sync.Mutex

	states  map[string]EntityState
	subs    map[string]map[int]func(StateChange)
	once    map[int]func()
	nextID  int
	running bool

	calls     []serviceCall
	callErr   error
	noApply   bool
	cancels   int
	cancelErr error
	subErr    error

	// When gate is set, service calls signal entered and then block until
	// gate is closed or their context ends.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		states:  make(map[string]EntityState),
		subs:    make(map[string]map[int]func(StateChange)),
		once:    make(map[int]func()),
		running: true,
	}
}

func (h *fakeHost) Subscribe(entityID string, fn func(StateChange)) (CancelFunc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subErr != nil {
		return nil, h.subErr
	}
	h.nextID++
	id := h.nextID
	if h.subs[entityID] == nil {
		h.subs[entityID] = make(map[int]func(StateChange))
	}
	h.subs[entityID][id] = fn

	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.cancels++
		delete(h.subs[entityID], id)
		return h.cancelErr
	}, nil
}

func (h *fakeHost) SubscribeOnce(_ string, fn func()) (CancelFunc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.once[id] = fn

	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.cancels++
		delete(h.once, id)
		return nil
	}, nil
}

func (h *fakeHost) State(entityID string) (EntityState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[entityID]
	return s, ok
}

func (h *fakeHost) CallService(ctx context.Context, domain, service, entityID string) error {
	h.mu.Lock()
	h.calls = append(h.calls, serviceCall{Domain: domain, Service: service, EntityID: entityID})
	err, noApply := h.callErr, h.noApply
	gate, entered := h.gate, h.entered
	h.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if !noApply {
		next := StateOff
		if service == ServiceTurnOn {
			next = StateOn
		}
		h.setState(entityID, next)
	}
	return nil
}

func (h *fakeHost) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// setState changes an entity and notifies its subscribers.
func (h *fakeHost) setState(entityID, value string) {
	h.mu.Lock()
	var old *EntityState
	if prev, ok := h.states[entityID]; ok {
		old = &prev
	}
	next := EntityState{State: value, LastUpdated: time.Now()}
	h.states[entityID] = next
	var fns []func(StateChange)
	for _, fn := range h.subs[entityID] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(StateChange{EntityID: entityID, Old: old, New: &next})
	}
}

// seed sets a state without notifying anyone.
func (h *fakeHost) seed(entityID, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[entityID] = EntityState{State: value}
}

// fireReady marks the host running and fires pending one-shot callbacks.
func (h *fakeHost) fireReady() {
	h.mu.Lock()
	h.running = true
	var fns []func()
	for id, fn := range h.once {
		fns = append(fns, fn)
		delete(h.once, id)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// holdCalls makes service calls block until the returned release func runs.
func (h *fakeHost) holdCalls() (entered <-chan struct{}, release func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gate = make(chan struct{})
	h.entered = make(chan struct{}, 1)
	var once sync.Once
	gate := h.gate
	return h.entered, func() { once.Do(func() { close(gate) }) }
}

func (h *fakeHost) serviceCalls() []serviceCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]serviceCall(nil), h.calls...)
}

func (h *fakeHost) subscriberCount(entityID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[entityID])
}

func (h *fakeHost) pendingOnce() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.once)
}

func (h *fakeHost) cancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
	loadErr  error
	options  map[string]Options
	updates  int
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{options: make(map[string]Options)}
}

func (s *fakeStore) LoadSnapshot(_ context.Context, _ string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.loadErr
}

func (s *fakeStore) UpdateOptions(_ context.Context, entryID string, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.options[entryID] = opts
	s.updates++
	return nil
}

func (s *fakeStore) saved(entryID string) (Options, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[entryID]
	return o, ok
}

// recordingObserver collects gateway command records.
type recordingObserver struct {
	mu      sync.Mutex
	records []CommandRecord
}

func (o *recordingObserver) ActuatorCommanded(rec CommandRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

// recordingLogger captures warnings and errors.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

const (
	testSensor = "sensor.hall_floor"
	testHeater = "switch.hall_heater"
)

func ptr[T any](v T) *T { return &v }

func testEntry() Entry {
	return Entry{
		ID:   "varmegolv_kontroll_hall",
		Name: "Hall",
		Data: Options{
			TempSensorEntityID:   ptr(testSensor),
			HeaterSwitchEntityID: ptr(testHeater),
			Hysteresis:           ptr(0.5),
			TargetTemp:           ptr(20.0),
		},
	}
}

// startController starts a controller and stops it at test end.
func startController(t *testing.T, entry Entry, host *fakeHost, store *fakeStore) *Controller {
	t.Helper()

	c := NewController(entry, host, store, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

// flush waits until every event queued so far has been handled.
// A no-op set-point request is processed in order behind them.
func flush(t *testing.T, c *Controller) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SetTargetTemperature(ctx, c.TargetTemperature()); err != nil && !errors.Is(err, ErrStopped) {
		t.Fatalf("flush: %v", err)
	}
}
