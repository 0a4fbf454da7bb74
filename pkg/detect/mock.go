package detect

import (
	"context"
	"sync"
	"time"

	"github.com/fi-losopher/Perception/pkg/perception"
)

// Detector is the backend surface the assistant depends on.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]perception.Detection, error)
	Health(ctx context.Context) (Health, error)
}

var (
	_ Detector = (*Client)(nil)
	_ Detector = (*Mock)(nil)
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, returns an empty detection set.
	DetectFunc func(ctx context.Context, jpeg []byte) ([]perception.Detection, error)

	// HealthFunc is called when Health is invoked.
	// If nil, reports BackendOK.
	HealthFunc func(ctx context.Context) (Health, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Bytes  int
	Time   time.Time
}

// NewMock creates a mock backend that is healthy and sees nothing.
func NewMock() *Mock {
	return &Mock{}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, jpeg []byte) ([]perception.Detection, error) {
	m.record("Detect", len(jpeg))
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, jpeg)
	}
	return []perception.Detection{}, nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) (Health, error) {
	m.record("Health", 0)
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return Health{Status: perception.BackendOK, Message: "mock"}, nil
}

func (m *Mock) record(method string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Bytes: n, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
