// Package scan implements the scan controller: the Idle/Scanning state
// machine, the repeating cycle trigger and the current detection slot.
//
// A Controller is owned by a single goroutine (the assistant's event loop)
// and is not safe for concurrent use. Detection work happens elsewhere;
// results come back through Apply tagged with the Cycle that requested them,
// so results that arrive after Stop are recognised as stale and dropped.
package scan

import (
	"errors"
	"time"

	"github.com/fi-losopher/Perception/pkg/perception"
	"github.com/google/uuid"
)

// DefaultInterval is the time between scan cycles.
const DefaultInterval = 2 * time.Second

var (
	// ErrAlreadyScanning is returned by Start while scanning.
	ErrAlreadyScanning = errors.New("scan: already scanning")

	// ErrNotScanning is returned by Stop while idle.
	ErrNotScanning = errors.New("scan: not scanning")
)

// Ticker delivers periodic ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

// Cycle identifies one detection round trip.
type Cycle struct {
	Session    string // scan session ID, new on every Start
	Generation uint64 // bumped on every Start and Stop
	Seq        int    // cycle number within the session, from 0
}

// Controller owns scanning state.
type Controller struct {
	interval   time.Duration
	newTicker  TickerFunc
	newSession func() string

	state      perception.ScanState
	ticker     Ticker
	generation uint64
	session    string
	seq        int
	applied    int
	detections []perception.Detection
}

// Option configures a Controller.
type Option func(*Controller)

// WithTicker replaces the wall-clock ticker, for tests.
func WithTicker(f TickerFunc) Option {
	return func(c *Controller) { c.newTicker = f }
}

// WithSessionIDs replaces the session ID generator.
func WithSessionIDs(f func() string) Option {
	return func(c *Controller) { c.newSession = f }
}

// New creates an idle controller. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, opts ...Option) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Controller{
		interval:   interval,
		newTicker:  newTimeTicker,
		newSession: func() string { return uuid.NewString() },
		applied:    -1,
		detections: []perception.Detection{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current scan state.
func (c *Controller) State() perception.ScanState {
	return c.state
}

// Scanning reports whether the controller is scanning.
func (c *Controller) Scanning() bool {
	return c.state == perception.Scanning
}

// Interval returns the time between cycles.
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Session returns the current scan session ID, empty when idle.
func (c *Controller) Session() string {
	if !c.Scanning() {
		return ""
	}
	return c.session
}

// SetInterval changes the time between cycles. While scanning the trigger
// is re-armed with the new interval.
func (c *Controller) SetInterval(d time.Duration) {
	if d <= 0 || d == c.interval {
		return
	}
	c.interval = d
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = c.newTicker(d)
	}
}

// C returns the trigger channel. It is nil while idle, so a select on it
// blocks until scanning starts.
func (c *Controller) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

// Start begins scanning and returns the cycle to run immediately.
// It fails with perception.ErrBackendOffline when the backend is offline and
// with ErrAlreadyScanning when already scanning; both leave state unchanged.
func (c *Controller) Start(status perception.BackendStatus) (Cycle, error) {
	if !status.CanScan() {
		return Cycle{}, perception.ErrBackendOffline
	}
	if c.Scanning() {
		return Cycle{}, ErrAlreadyScanning
	}

	c.state = perception.Scanning
	c.generation++
	c.session = c.newSession()
	c.seq = 0
	c.applied = -1
	c.ticker = c.newTicker(c.interval)

	return c.cycle(), nil
}

// Tick returns the next cycle. ok is false while idle.
func (c *Controller) Tick() (cycle Cycle, ok bool) {
	if !c.Scanning() {
		return Cycle{}, false
	}
	c.seq++
	return c.cycle(), true
}

// Stop cancels the trigger, clears the detection set and invalidates every
// cycle issued so far.
func (c *Controller) Stop() error {
	if !c.Scanning() {
		return ErrNotScanning
	}
	c.disarm()
	c.state = perception.Idle
	c.generation++
	c.detections = []perception.Detection{}
	return nil
}

// Live reports whether results for cycle would still be accepted.
func (c *Controller) Live(cycle Cycle) bool {
	return c.Scanning() && cycle.Generation == c.generation && cycle.Seq >= c.applied
}

// Apply replaces the detection set with the result of cycle. Results from a
// previous generation, or older than the last applied cycle, are dropped and
// Apply returns false.
func (c *Controller) Apply(cycle Cycle, dets []perception.Detection) bool {
	if !c.Live(cycle) {
		return false
	}
	c.applied = cycle.Seq
	c.detections = perception.CloneDetections(dets)
	return true
}

// Detections returns a copy of the current detection set.
func (c *Controller) Detections() []perception.Detection {
	return perception.CloneDetections(c.detections)
}

// Close releases the trigger. The controller is left idle.
func (c *Controller) Close() {
	if c.Scanning() {
		_ = c.Stop()
		return
	}
	c.disarm()
}

func (c *Controller) cycle() Cycle {
	return Cycle{Session: c.session, Generation: c.generation, Seq: c.seq}
}

func (c *Controller) disarm() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
