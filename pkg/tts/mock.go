package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is an offline Provider. It answers every phrase with 20ms of
// 24kHz silence per character and remembers what it was asked to say.
type Mock struct {
	// Err, when set, fails every call.
	Err error
	// Latency delays each synthesis.
	Latency time.Duration

	mu     sync.Mutex
	spoken []string
	counts map[string]int
}

// NewMock creates a healthy mock.
func NewMock() *Mock {
	return &Mock{counts: make(map[string]int)}
}

// WithError returns a mock whose calls all fail with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.Err = err
	return m
}

// WithLatency adds a synthesis delay to m.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	m.Latency = delay
	return m
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	format := PCMFormat(EncodingPCM24)
	pcm := make([]byte, len(text)*format.SampleRate/50*2)
	return &AudioResult{
		Audio:     pcm,
		Format:    format,
		Duration:  PCMDuration(len(pcm), format),
		CharCount: len(text),
	}, nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	return m.Err
}

func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
	if method == "Synthesize" {
		m.spoken = append(m.spoken, text)
	}
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// Spoken returns every phrase passed to Synthesize, oldest first.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

var _ Provider = (*Mock)(nil)
