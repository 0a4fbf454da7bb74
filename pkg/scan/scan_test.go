package scan

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fi-losopher/Perception/pkg/perception"
)

func newTestController(clock *fakeClock) *Controller {
	n := 0
	return New(2*time.Second,
		WithTicker(clock.newTicker),
		WithSessionIDs(func() string { n++; return fmt.Sprintf("session-%d", n) }),
	)
}

func TestStartFromIdle(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)

	if c.State() != perception.Idle {
		t.Fatalf("initial state = %v, want idle", c.State())
	}
	if c.C() != nil {
		t.Fatal("trigger armed while idle")
	}

	cycle, err := c.Start(perception.BackendOK)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != perception.Scanning {
		t.Errorf("state = %v, want scanning", c.State())
	}
	if cycle.Seq != 0 || cycle.Session != "session-1" {
		t.Errorf("first cycle = %+v", cycle)
	}
	if len(clock.tickers) != 1 || clock.last().interval != 2*time.Second {
		t.Fatalf("expected one 2s ticker, got %d", len(clock.tickers))
	}
	if c.C() == nil {
		t.Error("trigger not armed while scanning")
	}
}

func TestStartAllowedForNonOfflineStatuses(t *testing.T) {
	for _, status := range []perception.BackendStatus{perception.BackendUnknown, perception.BackendOK, perception.BackendDegraded} {
		c := newTestController(&fakeClock{})
		if _, err := c.Start(status); err != nil {
			t.Errorf("Start(%v) = %v", status, err)
		}
	}
}

func TestStartWhileOffline(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)

	_, err := c.Start(perception.BackendOffline)
	if !errors.Is(err, perception.ErrBackendOffline) {
		t.Fatalf("err = %v, want ErrBackendOffline", err)
	}
	if c.State() != perception.Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if len(clock.tickers) != 0 {
		t.Error("ticker armed while offline")
	}
}

func TestStartIsNoopWhileScanning(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)
	first, _ := c.Start(perception.BackendOK)

	_, err := c.Start(perception.BackendOK)
	if !errors.Is(err, ErrAlreadyScanning) {
		t.Fatalf("err = %v, want ErrAlreadyScanning", err)
	}
	if len(clock.tickers) != 1 {
		t.Errorf("second Start armed another ticker")
	}
	if c.Session() != first.Session {
		t.Errorf("session changed on no-op start")
	}
}

func TestTick(t *testing.T) {
	c := newTestController(&fakeClock{})

	if _, ok := c.Tick(); ok {
		t.Fatal("Tick while idle returned a cycle")
	}

	first, _ := c.Start(perception.BackendOK)
	for i := 1; i <= 3; i++ {
		cycle, ok := c.Tick()
		if !ok {
			t.Fatalf("tick %d: not ok", i)
		}
		if cycle.Seq != i || cycle.Generation != first.Generation || cycle.Session != first.Session {
			t.Errorf("tick %d: cycle = %+v", i, cycle)
		}
	}
}

func TestStopClearsAndDisarms(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)
	cycle, _ := c.Start(perception.BackendOK)
	c.Apply(cycle, []perception.Detection{{Class: "chair"}})

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.State() != perception.Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if got := c.Detections(); len(got) != 0 {
		t.Errorf("detections after stop = %v, want empty", got)
	}
	if !clock.last().isStopped() {
		t.Error("ticker not stopped")
	}
	if c.C() != nil {
		t.Error("trigger channel still set after stop")
	}
	if _, ok := c.Tick(); ok {
		t.Error("Tick after stop produced a cycle")
	}
}

func TestStopWhileIdle(t *testing.T) {
	c := newTestController(&fakeClock{})
	if err := c.Stop(); !errors.Is(err, ErrNotScanning) {
		t.Errorf("err = %v, want ErrNotScanning", err)
	}
}

func TestApplyReplacesSet(t *testing.T) {
	c := newTestController(&fakeClock{})
	first, _ := c.Start(perception.BackendOK)

	if !c.Apply(first, []perception.Detection{{Class: "chair"}, {Class: "cup"}}) {
		t.Fatal("Apply rejected live cycle")
	}
	next, _ := c.Tick()
	if !c.Apply(next, []perception.Detection{{Class: "person"}}) {
		t.Fatal("Apply rejected next cycle")
	}

	got := c.Detections()
	if len(got) != 1 || got[0].Class != "person" {
		t.Errorf("detections = %v, want only person", got)
	}
}

func TestApplyAfterStopIsDiscarded(t *testing.T) {
	c := newTestController(&fakeClock{})
	cycle, _ := c.Start(perception.BackendOK)

	_ = c.Stop()
	if c.Apply(cycle, []perception.Detection{{Class: "chair"}}) {
		t.Error("late result applied after stop")
	}
	if len(c.Detections()) != 0 {
		t.Error("late result repopulated the detection set")
	}
}

func TestApplyFromPreviousSessionIsDiscarded(t *testing.T) {
	c := newTestController(&fakeClock{})
	old, _ := c.Start(perception.BackendOK)
	_ = c.Stop()
	_, _ = c.Start(perception.BackendOK)

	if c.Apply(old, []perception.Detection{{Class: "ghost"}}) {
		t.Error("result from previous session applied")
	}
}

func TestApplyOutOfOrder(t *testing.T) {
	c := newTestController(&fakeClock{})
	first, _ := c.Start(perception.BackendOK)
	second, _ := c.Tick()

	if !c.Apply(second, []perception.Detection{{Class: "new"}}) {
		t.Fatal("newer cycle rejected")
	}
	if c.Apply(first, []perception.Detection{{Class: "old"}}) {
		t.Error("older cycle overwrote newer result")
	}
	if got := c.Detections(); got[0].Class != "new" {
		t.Errorf("detections = %v", got)
	}
}

func TestDetectionsIsACopy(t *testing.T) {
	c := newTestController(&fakeClock{})
	cycle, _ := c.Start(perception.BackendOK)
	c.Apply(cycle, []perception.Detection{{Class: "chair"}})

	got := c.Detections()
	got[0].Class = "mutated"
	if c.Detections()[0].Class != "chair" {
		t.Error("Detections exposes internal slice")
	}
}

func TestSetIntervalRearms(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)

	c.SetInterval(5 * time.Second)
	if len(clock.tickers) != 0 {
		t.Fatal("SetInterval armed a ticker while idle")
	}

	_, _ = c.Start(perception.BackendOK)
	c.SetInterval(time.Second)

	if len(clock.tickers) != 2 {
		t.Fatalf("tickers = %d, want 2", len(clock.tickers))
	}
	if !clock.tickers[0].isStopped() {
		t.Error("old ticker not stopped")
	}
	if clock.last().interval != time.Second {
		t.Errorf("new interval = %v", clock.last().interval)
	}
}

func TestClose(t *testing.T) {
	clock := &fakeClock{}
	c := newTestController(clock)
	_, _ = c.Start(perception.BackendOK)

	c.Close()
	if c.Scanning() || !clock.last().isStopped() {
		t.Error("Close did not stop scanning")
	}
	c.Close()
}

func TestDefaultInterval(t *testing.T) {
	if got := New(0).Interval(); got != DefaultInterval {
		t.Errorf("Interval = %v, want %v", got, DefaultInterval)
	}
}

func TestRealTickerFires(t *testing.T) {
	c := New(10 * time.Millisecond)
	if _, err := c.Start(perception.BackendOK); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case <-c.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}
