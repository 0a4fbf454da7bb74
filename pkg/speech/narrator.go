// Package speech carries spoken output and spoken input for the assistant.
//
// Output goes through a Narrator that speaks the newest phrase and drops the
// rest. Input comes from a Session that keeps a Recognizer running while
// voice commands are enabled.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Voice renders a phrase. Say blocks until the phrase finishes or ctx is
// cancelled.
type Voice interface {
	Say(ctx context.Context, text string) error
}

// Husher is implemented by voices that need an explicit signal to stop
// talking, such as a remote browser.
type Husher interface {
	Hush()
}

// Narrator speaks one phrase at a time. A new phrase cancels the one in
// progress; nothing is queued.
type Narrator struct {
	voice  Voice
	logger *slog.Logger

	mu      sync.Mutex
	muted   bool
	closed  bool
	cancel  context.CancelFunc
	current uint64
	wg      sync.WaitGroup

	// OnSpoken is called with each phrase accepted for speaking.
	OnSpoken func(text string)
}

// NewNarrator creates a narrator speaking through voice.
func NewNarrator(voice Voice, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{voice: voice, logger: logger.With("component", "narrator")}
}

// Speak starts speaking text and reports whether it was accepted. Blank
// text, a muted narrator and a closed narrator all refuse.
func (n *Narrator) Speak(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	n.mu.Lock()
	if n.muted || n.closed {
		n.mu.Unlock()
		return false
	}
	n.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.current++
	id := n.current
	n.wg.Add(1)
	onSpoken := n.OnSpoken
	n.mu.Unlock()

	if onSpoken != nil {
		onSpoken(text)
	}

	go func() {
		defer n.wg.Done()
		defer n.finish(id)
		if err := n.voice.Say(ctx, text); err != nil && ctx.Err() == nil {
			n.logger.Warn("speech failed", "error", err, "text", text)
		}
	}()
	return true
}

func (n *Narrator) finish(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == id && n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// stopLocked cancels the phrase in progress. n.mu must be held.
func (n *Narrator) stopLocked() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	n.cancel = nil
	if h, ok := n.voice.(Husher); ok {
		h.Hush()
	}
}

// Stop cancels the phrase in progress, if any.
func (n *Narrator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

// SetMuted gates all speech. Muting also silences the current phrase.
func (n *Narrator) SetMuted(muted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.muted = muted
	if muted {
		n.stopLocked()
	}
}

// Muted reports whether speech is gated.
func (n *Narrator) Muted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.muted
}

// Speaking reports whether a phrase is in progress.
func (n *Narrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancel != nil
}

// Close stops speech and waits for the voice to return.
func (n *Narrator) Close() {
	n.mu.Lock()
	n.closed = true
	n.stopLocked()
	n.mu.Unlock()
	n.wg.Wait()
}
