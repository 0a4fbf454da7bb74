package speech

import (
	"context"
	"strings"
	"sync"
)

// Bridge is a recognizer fed from outside, typically by the dashboard's
// browser speech engine. Transcripts pushed while no session is running
// are dropped.
type Bridge struct {
	mu   sync.Mutex
	emit func(string)
	fail chan error
	run  uint64
}

// NewBridge creates an idle bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Run attaches the session's emitter until ctx is cancelled or Fail is
// called.
func (b *Bridge) Run(ctx context.Context, emit func(string)) error {
	fail := make(chan error, 1)

	b.mu.Lock()
	b.emit = emit
	b.fail = fail
	b.run++
	run := b.run
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.run == run {
			b.emit = nil
			b.fail = nil
		}
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-fail:
		return err
	}
}

// Push delivers a transcript and reports whether a session received it.
func (b *Bridge) Push(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	b.mu.Lock()
	emit := b.emit
	b.mu.Unlock()

	if emit == nil {
		return false
	}
	emit(text)
	return true
}

// Fail ends the running session with err, as when the remote engine
// reports an error. It reports whether a session was running.
func (b *Bridge) Fail(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail == nil {
		return false
	}
	select {
	case b.fail <- err:
	default:
	}
	return true
}

// Attached reports whether a session is listening.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emit != nil
}
