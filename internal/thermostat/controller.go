package thermostat

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// inboxSize bounds queued events per controller. Host callbacks block once
// it is full, which only happens while a heater command is outstanding.
const inboxSize = 64

// Entry identifies one configured thermostat and carries its settings.
type Entry struct {
	ID   string
	Name string

	// Data is the setup-time configuration.
	Data Options

	// Options are runtime overrides, layered over Data.
	Options Options
}

type eventKind int

const (
	evStart eventKind = iota
	evSensorChanged
	evActuatorChanged
	evHostReady
	evSetTarget
	evSetMode
	evUpdateOptions
	evMergeOptions
	evStop
)

// event is one unit of work for the controller goroutine.
type event struct {
	kind   eventKind
	change StateChange
	target float64
	mode   Mode
	opts   Options
	reply  chan error
}

// state is the mutable thermostat state. Only the run goroutine touches it.
type state struct {
	currentTemp *float64
	targetTemp  float64
	mode        Mode
}

// Controller is one hysteresis thermostat.
//
// All state changes happen on a single goroutine that drains an inbox of
// host events and commands. Each handler runs to completion, including the
// blocking heater command, so control decisions for one controller never
// overlap. Accessors read the Status published after every handler.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Listeners registered with OnStateChanged run on the controller
//     goroutine and must not call the controller's blocking methods.
type Controller struct {
	entryID string
	name    string
	data    Options

	host     Host
	store    Store
	logger   Logger
	observer CommandObserver

	onDebug   func(enabled bool)
	listeners []func(Status)

	inbox    chan event
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	status   atomic.Pointer[Status]

	// Owned by the run goroutine once started.
	ctx         context.Context
	cancel      context.CancelFunc
	opts        Options
	cfg         Config
	st          state
	phase       Phase
	evaluations uint64
	subs        *SubscriptionManager
	gateway     *ActuatorGateway
}

// NewController creates a controller for entry. Nothing is subscribed or
// restored until Start.
//
// Parameters:
//   - entry: Entry id, name, setup data and runtime options
//   - host: Platform supplying entity states and the heater service
//   - store: Snapshot and options persistence
//   - logger: Logger scoped to this thermostat (may be nil)
func NewController(entry Entry, host Host, store Store, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}

	cfg := MergeConfig(entry.Data, entry.Options)
	c := &Controller{
		entryID: entry.ID,
		name:    entry.Name,
		data:    entry.Data,
		host:    host,
		store:   store,
		logger:  logger,
		inbox:   make(chan event, inboxSize),
		done:    make(chan struct{}),
		opts:    entry.Options,
		cfg:     cfg,
		st: state{
			targetTemp: cfg.TargetTemp,
			mode:       modeFromEnabled(cfg.MasterEnabled),
		},
		phase: PhaseUninitialized,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.publishStatus()
	return c
}

// SetCommandObserver registers an observer for heater commands.
// Must be called before Start.
func (c *Controller) SetCommandObserver(o CommandObserver) {
	c.observer = o
}

// SetDebugHandler registers fn to be told when the debug_logging option
// changes. It is called once from Start with the initial value.
// Must be called before Start.
func (c *Controller) SetDebugHandler(fn func(enabled bool)) {
	c.onDebug = fn
}

// OnStateChanged registers a listener for state-changed notifications.
// Must be called before Start.
func (c *Controller) OnStateChanged(fn func(Status)) {
	c.listeners = append(c.listeners, fn)
}

// ID returns the entry id.
func (c *Controller) ID() string { return c.entryID }

// Name returns the entry's display name.
func (c *Controller) Name() string { return c.name }

// Start restores persisted state, subscribes to the sensor and heater, and
// either runs the first control evaluation or defers it until the host is
// ready. It returns once that sequence has completed.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.gateway = NewActuatorGateway(c.host, c.logger, c.observer)
	c.subs = NewSubscriptionManager(c.host, c.logger,
		func(ch StateChange) { c.post(event{kind: evSensorChanged, change: ch}) },
		func(ch StateChange) { c.post(event{kind: evActuatorChanged, change: ch}) },
	)

	go c.run()
	return c.request(ctx, event{kind: evStart})
}

// Stop cancels all subscriptions and ends the controller goroutine.
// Safe to call more than once and before Start.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		// Abort any heater command still waiting for its ack.
		c.cancel()
		if !c.started.CompareAndSwap(false, true) {
			c.post(event{kind: evStop})
			<-c.done
			return
		}
		// Never started: nothing to tear down.
		c.phase = PhaseStopped
		c.publishStatus()
		close(c.done)
	})
}

// Done is closed once the controller has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// SetTargetTemperature changes the set-point and re-evaluates control.
func (c *Controller) SetTargetTemperature(ctx context.Context, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidTemperature
	}
	return c.request(ctx, event{kind: evSetTarget, target: v})
}

// SetMode switches between heat and off. The choice is persisted as the
// entry's master_enabled option so it survives restarts.
func (c *Controller) SetMode(ctx context.Context, m Mode) error {
	if m != ModeHeat && m != ModeOff {
		return ErrUnsupportedMode
	}
	return c.request(ctx, event{kind: evSetMode, mode: m})
}

// TurnOn is SetMode(ModeHeat).
func (c *Controller) TurnOn(ctx context.Context) error {
	return c.SetMode(ctx, ModeHeat)
}

// TurnOff is SetMode(ModeOff).
func (c *Controller) TurnOff(ctx context.Context) error {
	return c.SetMode(ctx, ModeOff)
}

// UpdateOptions replaces the runtime options wholesale and applies them.
func (c *Controller) UpdateOptions(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return c.request(ctx, event{kind: evUpdateOptions, opts: opts})
}

// MergeOptions overlays changes onto the current runtime options, persists
// the result and applies it. The merge runs on the controller goroutine so
// it cannot overwrite a mode change queued ahead of it. Nothing is applied
// when validation or persistence fails.
func (c *Controller) MergeOptions(ctx context.Context, changes Options) error {
	return c.request(ctx, event{kind: evMergeOptions, opts: changes})
}

// Status returns the latest published status.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// CurrentTemperature returns the last valid sensor reading.
func (c *Controller) CurrentTemperature() (float64, bool) {
	s := c.status.Load()
	if s.CurrentTemp == nil {
		return 0, false
	}
	return *s.CurrentTemp, true
}

// TargetTemperature returns the set-point.
func (c *Controller) TargetTemperature() float64 { return c.status.Load().TargetTemp }

// Mode returns the HVAC mode.
func (c *Controller) Mode() Mode { return c.status.Load().Mode }

// Action returns the derived HVAC action.
func (c *Controller) Action() Action { return c.status.Load().Action }

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase { return c.status.Load().Phase }

// Options returns the runtime options as of the latest status.
func (c *Controller) Options() Options { return c.status.Load().Options }

// request enqueues a command and waits for it to be handled.
func (c *Controller) request(ctx context.Context, ev event) error {
	if !c.started.Load() {
		return ErrNotStarted
	}

	ev.reply = make(chan error, 1)
	select {
	case c.inbox <- ev:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ev.reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues a host event. Dropped once the controller has stopped.
func (c *Controller) post(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// run is the controller goroutine.
func (c *Controller) run() {
	defer close(c.done)
	defer c.cancel()

	for ev := range c.inbox {
		var err error
		switch ev.kind {
		case evStart:
			c.handleStart()
		case evSensorChanged:
			c.handleSensorChanged(ev.change)
		case evActuatorChanged:
			c.handleActuatorChanged(ev.change)
		case evHostReady:
			c.handleHostReady()
		case evSetTarget:
			c.handleSetTarget(ev.target)
		case evSetMode:
			c.handleSetMode(ev.mode)
		case evUpdateOptions:
			c.handleUpdateOptions(ev.opts)
		case evMergeOptions:
			err = c.handleMergeOptions(ev.opts)
		case evStop:
			c.handleStop()
		}

		if ev.reply != nil {
			ev.reply <- err
		}
		if ev.kind == evStop {
			return
		}
	}
}

func (c *Controller) handleStart() {
	c.phase = PhaseRestoring
	c.restore()

	if c.onDebug != nil {
		c.onDebug(c.cfg.DebugLogging)
	}

	if err := c.subs.Rebuild(c.cfg.SensorID, c.cfg.ActuatorID); err != nil {
		c.logger.Warn("thermostat started with incomplete subscriptions", "error", err)
	}

	if c.host.IsRunning() {
		c.logger.Debug("host running, activating immediately")
		c.activate()
	} else {
		c.logger.Debug("host not running yet, waiting for ready signal")
		c.waitForHostReady()
	}

	c.logger.Info("thermostat started",
		"phase", c.phase.String(),
		"target_temp", c.st.targetTemp,
		"mode", string(c.st.mode),
		"sensor", c.cfg.SensorID,
		"heater", c.cfg.ActuatorID,
	)
	c.emit()
}

// restore merges the persisted snapshot into the initial state.
// Config wins for any value the snapshot lacks or holds invalid.
func (c *Controller) restore() {
	c.st.targetTemp = c.cfg.TargetTemp
	c.st.mode = modeFromEnabled(c.cfg.MasterEnabled)

	if c.store == nil {
		return
	}

	snap, err := c.store.LoadSnapshot(c.ctx, c.entryID)
	if err != nil {
		c.logger.Warn("loading snapshot failed, using configured values", "error", err)
		return
	}
	if snap == nil {
		c.logger.Debug("no snapshot, using configured values")
		return
	}

	if snap.TargetTemp != nil && isFinite(*snap.TargetTemp) {
		c.st.targetTemp = *snap.TargetTemp
	}
	if snap.HVACMode != "" {
		m, err := ParseMode(snap.HVACMode)
		if err != nil {
			c.logger.Warn("invalid restored hvac mode, using configured mode", "hvac_mode", snap.HVACMode)
		} else {
			c.st.mode = m
		}
	}
	c.logger.Debug("restored snapshot", "target_temp", c.st.targetTemp, "mode", string(c.st.mode))
}

func (c *Controller) waitForHostReady() {
	c.phase = PhaseWaitingForHostReady
	err := c.subs.RegisterStartupHandle(func() {
		c.post(event{kind: evHostReady})
	})
	if err != nil {
		// Without a ready signal the controller would never start controlling.
		c.logger.Warn("cannot wait for host ready, activating now", "error", err)
		c.activate()
	}
}

func (c *Controller) activate() {
	c.phase = PhaseActive
	c.refreshSensor()
	c.control()
}

// refreshSensor feeds the sensor's current host state through the reading path.
func (c *Controller) refreshSensor() {
	if c.cfg.SensorID == "" {
		return
	}
	if s, ok := c.host.State(c.cfg.SensorID); ok {
		c.onSensorReading(&s)
	}
}

func (c *Controller) handleHostReady() {
	if c.phase != PhaseWaitingForHostReady {
		return
	}
	c.subs.ClearStartupHandle()
	c.logger.Debug("host ready, activating")
	c.activate()
	c.emit()
}

func (c *Controller) handleSensorChanged(ch StateChange) {
	if ch.EntityID != c.cfg.SensorID {
		return
	}
	if c.onSensorReading(ch.New) {
		c.control()
		c.emit()
	}
}

func (c *Controller) handleActuatorChanged(ch StateChange) {
	if ch.EntityID != c.cfg.ActuatorID {
		return
	}
	newState := "unknown"
	if ch.New != nil {
		newState = ch.New.State
	}
	c.logger.Info("heater switch changed", "entity_id", ch.EntityID, "state", newState)
	c.emit()
}

func (c *Controller) handleSetTarget(v float64) {
	if v == c.st.targetTemp {
		c.logger.Debug("target temperature unchanged", "target_temp", v)
		return
	}
	c.st.targetTemp = v
	c.logger.Info("target temperature set", "target_temp", v)
	c.control()
	c.emit()
}

func (c *Controller) handleSetMode(m Mode) {
	if m == c.st.mode {
		c.logger.Debug("hvac mode unchanged", "mode", string(m))
		return
	}
	c.st.mode = m
	c.logger.Info("hvac mode set", "mode", string(m))

	c.opts = c.opts.WithMasterEnabled(m == ModeHeat)
	c.cfg = MergeConfig(c.data, c.opts)
	if c.store != nil {
		if err := c.store.UpdateOptions(c.ctx, c.entryID, c.opts); err != nil {
			c.logger.Error("persisting master_enabled failed", "error", err)
		}
	}

	c.control()
	c.emit()
}

func (c *Controller) handleMergeOptions(changes Options) error {
	next := c.opts.Overlay(changes)
	if err := next.Validate(); err != nil {
		return err
	}
	if c.store != nil {
		if err := c.store.UpdateOptions(c.ctx, c.entryID, next); err != nil {
			return fmt.Errorf("persisting options: %w", err)
		}
	}
	c.handleUpdateOptions(next)
	return nil
}

func (c *Controller) handleUpdateOptions(opts Options) {
	prev := c.cfg
	c.opts = opts
	c.cfg = MergeConfig(c.data, opts)

	repoint := false
	if c.cfg.SensorID != prev.SensorID {
		c.logger.Info("temperature sensor changed", "from", prev.SensorID, "to", c.cfg.SensorID)
		repoint = true
	}
	if c.cfg.ActuatorID != prev.ActuatorID {
		c.logger.Info("heater switch changed", "from", prev.ActuatorID, "to", c.cfg.ActuatorID)
		repoint = true
	}
	if c.cfg.Hysteresis != prev.Hysteresis {
		c.logger.Info("hysteresis changed", "from", prev.Hysteresis, "to", c.cfg.Hysteresis)
	}
	if opts.MasterEnabled != nil {
		if m := modeFromEnabled(*opts.MasterEnabled); m != c.st.mode {
			c.st.mode = m
			c.logger.Info("hvac mode changed by options", "mode", string(m))
		}
	}
	if c.cfg.DebugLogging != prev.DebugLogging && c.onDebug != nil {
		c.onDebug(c.cfg.DebugLogging)
	}

	if repoint {
		if err := c.subs.Rebuild(c.cfg.SensorID, c.cfg.ActuatorID); err != nil {
			c.logger.Warn("resubscribing after options change incomplete", "error", err)
		}
		switch {
		case c.phase == PhaseWaitingForHostReady:
			// Rebuild dropped the pending startup subscription.
			c.waitForHostReady()
		case c.host.IsRunning():
			c.refreshSensor()
		}
	}

	c.control()
	c.emit()
}

func (c *Controller) handleStop() {
	c.subs.Teardown()
	c.phase = PhaseStopped
	c.logger.Info("thermostat stopped")
	c.publishStatus()
}

// onSensorReading applies a sensor state and reports whether the current
// temperature changed. Unparseable and unavailable states make it unknown.
func (c *Controller) onSensorReading(s *EntityState) bool {
	prev := c.st.currentTemp

	if s == nil || s.State == "" || s.State == StateUnknown || s.State == StateUnavailable {
		if prev == nil {
			return false
		}
		c.logger.Warn("temperature sensor unavailable", "entity_id", c.cfg.SensorID)
		c.st.currentTemp = nil
		return true
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
	if err != nil || !isFinite(v) {
		c.logger.Warn("cannot parse temperature", "entity_id", c.cfg.SensorID, "state", s.State)
		c.st.currentTemp = nil
		return prev != nil
	}

	if prev != nil && *prev == v {
		return false
	}
	c.st.currentTemp = &v
	c.logger.Debug("current temperature", "entity_id", c.cfg.SensorID, "temp", v)
	return true
}

// control runs one hysteresis evaluation and drives the heater.
// Nothing happens before the controller is active.
func (c *Controller) control() {
	if c.phase != PhaseActive {
		return
	}
	c.evaluations++

	in := DecisionInput{
		Mode:               c.st.mode,
		CurrentTemp:        c.st.currentTemp,
		TargetTemp:         c.st.targetTemp,
		Hysteresis:         c.cfg.Hysteresis,
		ActuatorConfigured: c.cfg.ActuatorID != "",
	}
	if in.ActuatorConfigured {
		s, ok := c.host.State(c.cfg.ActuatorID)
		in.ActuatorFound = ok
		in.ActuatorOn = ok && s.State == StateOn
	}

	d := Decide(in)
	switch d.Reason {
	case ReasonActuatorNotConfigured:
		c.logger.Warn("no heater switch configured, cannot control")
	case ReasonActuatorNotFound:
		c.logger.Warn("heater switch not found on host", "entity_id", c.cfg.ActuatorID)
	case ReasonTemperatureUnknown:
		c.logger.Debug("temperature unknown, cannot control")
	default:
		c.logger.Debug("control decision",
			"reason", d.Reason,
			"command", d.Command.String(),
			"lower", d.Lower,
			"upper", d.Upper,
			"heater_on", in.ActuatorOn,
		)
	}

	if d.Command == CommandNone {
		return
	}
	// Failures are logged by the gateway; the next evaluation retries.
	_, _ = c.gateway.SetActuator(c.ctx, c.cfg.ActuatorID, d.Command == CommandOn) //nolint:errcheck // logged by gateway
}

// action derives the HVAC action from mode and observed heater state.
func (c *Controller) action() Action {
	if c.st.mode == ModeOff {
		return ActionOff
	}
	if c.cfg.ActuatorID != "" {
		if s, ok := c.host.State(c.cfg.ActuatorID); ok && s.State == StateOn {
			return ActionHeating
		}
	}
	return ActionIdle
}

func (c *Controller) publishStatus() Status {
	var current *float64
	if c.st.currentTemp != nil {
		v := *c.st.currentTemp
		current = &v
	}
	s := Status{
		EntryID:     c.entryID,
		Name:        c.name,
		Phase:       c.phase,
		CurrentTemp: current,
		TargetTemp:  c.st.targetTemp,
		Mode:        c.st.mode,
		Action:      c.action(),
		Hysteresis:  c.cfg.Hysteresis,
		SensorID:    c.cfg.SensorID,
		ActuatorID:  c.cfg.ActuatorID,
		Options:     c.opts,
		Evaluations: c.evaluations,
		UpdatedAt:   time.Now(),
	}
	c.status.Store(&s)
	return s
}

// emit publishes the status and notifies state-changed listeners.
func (c *Controller) emit() {
	s := c.publishStatus()
	for _, fn := range c.listeners {
		fn(s)
	}
}
