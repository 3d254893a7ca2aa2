package statebus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

// fakeCaller is a Caller that records calls and returns canned results.
type fakeCaller struct {
	mu    sync.Mutex
	calls []string
	state string
	err   error
}

func (f *fakeCaller) Call(_ context.Context, domain, service, entityID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain+"."+service+":"+entityID)
	return f.state, f.err
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []thermostat.StateChange
}

func (r *changeRecorder) record(ch thermostat.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *changeRecorder) last() thermostat.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func TestBus_SetStateNotifiesSubscribers(t *testing.T) {
	bus := New()
	rec := &changeRecorder{}
	if _, err := bus.Subscribe("sensor.floor", rec.record); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	bus.SetState("sensor.floor", thermostat.EntityState{State: "19.5"})
	if rec.count() != 1 {
		t.Fatalf("changes = %d, want 1", rec.count())
	}
	first := rec.last()
	if first.Old != nil {
		t.Errorf("first change Old = %+v, want nil", first.Old)
	}
	if first.New == nil || first.New.State != "19.5" {
		t.Errorf("first change New = %+v, want 19.5", first.New)
	}
	if first.New.LastUpdated.IsZero() {
		t.Error("LastUpdated should be stamped")
	}

	bus.SetState("sensor.floor", thermostat.EntityState{State: "20.0"})
	second := rec.last()
	if second.Old == nil || second.Old.State != "19.5" {
		t.Errorf("second change Old = %+v, want 19.5", second.Old)
	}

	// Other entities do not reach this subscriber.
	bus.SetState("sensor.other", thermostat.EntityState{State: "1"})
	if rec.count() != 2 {
		t.Errorf("changes = %d, want 2", rec.count())
	}
}

func TestBus_SetStateSkipsUnchanged(t *testing.T) {
	bus := New()
	rec := &changeRecorder{}
	bus.Subscribe("switch.heater", rec.record) //nolint:errcheck

	bus.SetState("switch.heater", thermostat.EntityState{State: "on", Attributes: map[string]any{"power": 1.0}})
	bus.SetState("switch.heater", thermostat.EntityState{State: "on", Attributes: map[string]any{"power": 1.0}})
	if rec.count() != 1 {
		t.Errorf("changes = %d, want 1 for identical states", rec.count())
	}

	bus.SetState("switch.heater", thermostat.EntityState{State: "on", Attributes: map[string]any{"power": 2.0}})
	if rec.count() != 2 {
		t.Errorf("changes = %d, want 2 after attribute change", rec.count())
	}
}

func TestBus_RemoveState(t *testing.T) {
	bus := New()
	rec := &changeRecorder{}
	bus.Subscribe("sensor.floor", rec.record) //nolint:errcheck

	bus.RemoveState("sensor.floor")
	if rec.count() != 0 {
		t.Fatal("removing an unknown entity should not notify")
	}

	bus.SetState("sensor.floor", thermostat.EntityState{State: "21"})
	bus.RemoveState("sensor.floor")

	if _, ok := bus.State("sensor.floor"); ok {
		t.Error("State() should report missing after RemoveState")
	}
	ch := rec.last()
	if ch.New != nil {
		t.Errorf("New = %+v, want nil", ch.New)
	}
	if ch.Old == nil || ch.Old.State != "21" {
		t.Errorf("Old = %+v, want 21", ch.Old)
	}
}

func TestBus_CancelSubscription(t *testing.T) {
	bus := New()
	rec := &changeRecorder{}
	cancel, err := bus.Subscribe("sensor.floor", rec.record)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if bus.SubscriberCount("sensor.floor") != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", bus.SubscriberCount("sensor.floor"))
	}

	if err := cancel(); err != nil {
		t.Errorf("cancel() error = %v", err)
	}
	if err := cancel(); err != nil {
		t.Errorf("second cancel() error = %v", err)
	}
	if bus.SubscriberCount("sensor.floor") != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", bus.SubscriberCount("sensor.floor"))
	}

	bus.SetState("sensor.floor", thermostat.EntityState{State: "20"})
	if rec.count() != 0 {
		t.Error("cancelled subscriber was notified")
	}
}

func TestBus_CancelFromInsideCallback(t *testing.T) {
	bus := New()
	var cancel thermostat.CancelFunc
	calls := 0
	cancel, _ = bus.Subscribe("sensor.floor", func(thermostat.StateChange) {
		calls++
		cancel() //nolint:errcheck
	})

	bus.SetState("sensor.floor", thermostat.EntityState{State: "1"})
	bus.SetState("sensor.floor", thermostat.EntityState{State: "2"})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus := New()
	if _, err := bus.Subscribe("", func(thermostat.StateChange) {}); err == nil {
		t.Error("Subscribe(\"\") should fail")
	}
	if _, err := bus.Subscribe("sensor.floor", nil); err == nil {
		t.Error("Subscribe(nil) should fail")
	}
	if _, err := bus.SubscribeOnce(thermostat.SignalReady, nil); err == nil {
		t.Error("SubscribeOnce(nil) should fail")
	}
}

func TestBus_SubscriberPanicRecovered(t *testing.T) {
	bus := New()
	rec := &changeRecorder{}
	bus.Subscribe("sensor.floor", func(thermostat.StateChange) { panic("boom") }) //nolint:errcheck
	bus.Subscribe("sensor.floor", rec.record)                                      //nolint:errcheck

	bus.SetState("sensor.floor", thermostat.EntityState{State: "20"})
	if rec.count() != 1 {
		t.Errorf("healthy subscriber changes = %d, want 1", rec.count())
	}
}

func TestBus_ReadySignal(t *testing.T) {
	bus := New()
	if bus.IsRunning() {
		t.Fatal("new bus should not be running")
	}

	fired := make(chan struct{}, 2)
	if _, err := bus.SubscribeOnce(thermostat.SignalReady, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("SubscribeOnce() error = %v", err)
	}
	cancelled, _ := bus.SubscribeOnce(thermostat.SignalReady, func() { fired <- struct{}{} })
	cancelled() //nolint:errcheck

	bus.MarkRunning()
	bus.MarkRunning()

	if !bus.IsRunning() {
		t.Error("IsRunning() = false after MarkRunning")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ready callback not fired")
	}
	select {
	case <-fired:
		t.Error("cancelled or duplicate ready callback fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscribeOnceAfterFire(t *testing.T) {
	bus := New()
	bus.MarkRunning()

	// Holding a lock the callback needs proves it runs asynchronously.
	var mu sync.Mutex
	mu.Lock()
	done := make(chan struct{})
	if _, err := bus.SubscribeOnce(thermostat.SignalReady, func() {
		mu.Lock()
		defer mu.Unlock()
		close(done)
	}); err != nil {
		t.Fatalf("SubscribeOnce() error = %v", err)
	}
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late ready callback not fired")
	}
}

func TestBus_CallService(t *testing.T) {
	tests := []struct {
		name      string
		service   string
		reported  string
		callErr   error
		wantState string
		wantErr   error
	}{
		{name: "turn on implies on", service: thermostat.ServiceTurnOn, wantState: thermostat.StateOn},
		{name: "turn off implies off", service: thermostat.ServiceTurnOff, wantState: thermostat.StateOff},
		{name: "reported state wins", service: thermostat.ServiceTurnOn, reported: "unavailable", wantState: "unavailable"},
		{name: "unknown service leaves state", service: "toggle", wantState: thermostat.StateOff},
		{name: "rejected", service: thermostat.ServiceTurnOn, callErr: ErrCommandRejected, wantState: thermostat.StateOff, wantErr: ErrCommandRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := New()
			bus.SetState("switch.heater", thermostat.EntityState{State: thermostat.StateOff, Attributes: map[string]any{"room": "hall"}})
			caller := &fakeCaller{state: tt.reported, err: tt.callErr}
			bus.SetCaller(caller)

			err := bus.CallService(context.Background(), thermostat.SwitchDomain, tt.service, "switch.heater")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CallService() error = %v, want %v", err, tt.wantErr)
			}

			got, _ := bus.State("switch.heater")
			if got.State != tt.wantState {
				t.Errorf("state = %q, want %q", got.State, tt.wantState)
			}
			if got.Attributes["room"] != "hall" {
				t.Errorf("attributes = %v, want preserved", got.Attributes)
			}
			if len(caller.calls) != 1 || caller.calls[0] != "switch."+tt.service+":switch.heater" {
				t.Errorf("calls = %v", caller.calls)
			}
		})
	}
}

func TestBus_CallServiceWithoutCaller(t *testing.T) {
	bus := New()
	err := bus.CallService(context.Background(), thermostat.SwitchDomain, thermostat.ServiceTurnOn, "switch.heater")
	if !errors.Is(err, ErrNoCaller) {
		t.Errorf("CallService() error = %v, want ErrNoCaller", err)
	}
}

// TestBus_DrivesController runs a real controller against the bus to check
// the Host contract end to end.
func TestBus_DrivesController(t *testing.T) {
	bus := New()
	caller := &fakeCaller{}
	bus.SetCaller(caller)
	bus.SetState("sensor.floor", thermostat.EntityState{State: "18.0"})
	bus.SetState("switch.heater", thermostat.EntityState{State: thermostat.StateOff})

	target := 21.0
	entry := thermostat.Entry{
		ID:   "varmegolv_kontroll_hall",
		Name: "Hall",
		Data: thermostat.Options{
			TempSensorEntityID:   ptrString("sensor.floor"),
			HeaterSwitchEntityID: ptrString("switch.heater"),
			TargetTemp:           &target,
		},
	}
	ctrl := thermostat.NewController(entry, bus, nil, nil)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer ctrl.Stop()

	bus.MarkRunning()
	waitFor(t, func() bool {
		s, _ := bus.State("switch.heater")
		return s.State == thermostat.StateOn
	})

	bus.SetState("sensor.floor", thermostat.EntityState{State: "22.0"})
	waitFor(t, func() bool {
		s, _ := bus.State("switch.heater")
		return s.State == thermostat.StateOff
	})

	caller.mu.Lock()
	defer caller.mu.Unlock()
	if len(caller.calls) != 2 {
		t.Errorf("calls = %v, want turn_on then turn_off", caller.calls)
	}
}

func ptrString(s string) *string { return &s }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
