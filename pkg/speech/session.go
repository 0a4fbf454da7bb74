package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recognizer is a speech recognition engine. One call to Run is one
// recognition session: it emits finalized transcripts until ctx is
// cancelled or the engine ends the session. A nil error means the session
// ended normally and may be restarted.
type Recognizer interface {
	Run(ctx context.Context, emit func(text string)) error
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, emit func(text string)) error

// Run implements Recognizer.
func (f RecognizerFunc) Run(ctx context.Context, emit func(text string)) error {
	return f(ctx, emit)
}

// DefaultRestartDelay is the pause before a finished session restarts.
const DefaultRestartDelay = 250 * time.Millisecond

// Session keeps a recognizer running while listening is enabled.
type Session struct {
	rec    Recognizer
	logger *slog.Logger
	delay  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	wg     sync.WaitGroup

	// OnTranscript receives every finalized transcript.
	OnTranscript func(text string)

	// OnError is called once when a session fails. The session is then
	// stopped and must be started again explicitly.
	OnError func(err error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRestartDelay sets the pause between sessions.
func WithRestartDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.delay = d }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a stopped session over rec.
func NewSession(rec Recognizer, opts ...SessionOption) *Session {
	s := &Session{rec: rec, logger: slog.Default(), delay: DefaultRestartDelay}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech-session")
	return s
}

// Start begins recognition. It is a no-op while already running.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	s.wg.Add(1)
	go s.loop(ctx, s.gen)
}

// Stop ends recognition without waiting for the recognizer to return.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Close stops recognition and waits for every recognizer run to return.
func (s *Session) Close() {
	s.Stop()
	s.wg.Wait()
}

// Running reports whether recognition is enabled.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) loop(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	for runs := 1; ; runs++ {
		err := s.rec.Run(ctx, s.emit)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("recognition failed", "error", err, "sessions", runs)
			s.disable(gen)
			if s.OnError != nil {
				s.OnError(err)
			}
			return
		}

		s.logger.Debug("recognition ended, restarting", "sessions", runs)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

// disable clears the running state if it still belongs to run gen.
func (s *Session) disable(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) emit(text string) {
	if s.OnTranscript != nil {
		s.OnTranscript(text)
	}
}
