package influxdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
)

// mockWriter records points instead of sending them.
type mockWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (m *mockWriter) WritePoint(p *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *mockWriter) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func lineProtocol(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Second)
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Org:     "graylogic",
		Bucket:  "thermostat",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteThermostat(t *testing.T) {
	w := &mockWriter{}
	c := newClient(nil, w)

	current, target, on := 20.5, 21.0, true
	c.WriteThermostat(ThermostatSample{
		EntryID:     "varmegolv_kontroll_hall",
		Name:        "Hall",
		CurrentTemp: &current,
		TargetTemp:  &target,
		HVACMode:    "heat",
		HVACAction:  "heating",
		HeaterOn:    &on,
		Time:        time.Unix(1700000000, 0),
	})

	if len(w.points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(w.points))
	}
	line := lineProtocol(w.points[0])
	for _, want := range []string{
		"thermostat,entry_id=varmegolv_kontroll_hall,name=Hall ",
		"current_temp=20.5",
		"target_temp=21",
		`hvac_action="heating"`,
		`hvac_mode="heat"`,
		"heater_on=true",
		" 1700000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteThermostat_OmitsUnknownValues(t *testing.T) {
	w := &mockWriter{}
	c := newClient(nil, w)

	c.WriteThermostat(ThermostatSample{EntryID: "x", HVACMode: "off", HVACAction: "off"})

	line := lineProtocol(w.points[0])
	for _, unwanted := range []string{"current_temp", "target_temp", "heater_on"} {
		if strings.Contains(line, unwanted) {
			t.Errorf("line %q should not contain %q", line, unwanted)
		}
	}
}

func TestWriteCommand(t *testing.T) {
	w := &mockWriter{}
	c := newClient(nil, w)

	c.WriteCommand(CommandSample{
		EntryID:   "varmegolv_kontroll_hall",
		EntityID:  "switch.hall_heater",
		Service:   "turn_on",
		DesiredOn: true,
		Success:   false,
		Time:      time.Unix(1700000000, 0),
	})

	line := lineProtocol(w.points[0])
	if !strings.HasPrefix(line, "thermostat_command,entity_id=switch.hall_heater,entry_id=varmegolv_kontroll_hall,service=turn_on ") {
		t.Errorf("unexpected tags in %q", line)
	}
	if !strings.Contains(line, "desired_on=true") || !strings.Contains(line, "success=false") {
		t.Errorf("unexpected fields in %q", line)
	}
}

func TestClose_StopsWrites(t *testing.T) {
	w := &mockWriter{}
	c := newClient(nil, w)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("expected Close to flush once, got %d", w.flushes)
	}

	c.WriteThermostat(ThermostatSample{EntryID: "x"})
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Error("writes after Close must be dropped")
	}
	if !errors.Is(c.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck after Close should report ErrNotConnected")
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newClient(nil, &mockWriter{})

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("bucket not found")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reported connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	c.WriteThermostat(ThermostatSample{})
}
