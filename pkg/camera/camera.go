package camera

import (
	"context"
	"sync"

	"github.com/fi-losopher/Perception/pkg/perception"
)

// Camera yields the most recent frame as JPEG bytes.
type Camera interface {
	// Frame returns a copy of the latest encoded frame, or
	// perception.ErrNoFrame when nothing has been captured yet.
	Frame() ([]byte, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Opener acquires a camera. It is called once when the assistant starts.
type Opener func(ctx context.Context) (Camera, error)

// Static is a Camera that always returns the same frame.
// Used headless and in tests.
type Static struct {
	mu     sync.Mutex
	frame  []byte
	closed bool
}

// NewStatic returns a camera serving jpeg. A nil frame behaves like a
// camera that has not produced anything yet.
func NewStatic(jpeg []byte) *Static {
	return &Static{frame: jpeg}
}

// SetFrame replaces the served frame.
func (s *Static) SetFrame(jpeg []byte) {
	s.mu.Lock()
	s.frame = jpeg
	s.mu.Unlock()
}

// Frame implements Camera.
func (s *Static) Frame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, perception.ErrCameraAccess
	}
	if len(s.frame) == 0 {
		return nil, perception.ErrNoFrame
	}
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, nil
}

// Close implements Camera.
func (s *Static) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// StaticOpener returns an Opener that always yields cam.
func StaticOpener(cam Camera) Opener {
	return func(context.Context) (Camera, error) { return cam, nil }
}

// FailingOpener returns an Opener that always fails with err.
func FailingOpener(err error) Opener {
	return func(context.Context) (Camera, error) { return nil, err }
}

var _ Camera = (*Static)(nil)
