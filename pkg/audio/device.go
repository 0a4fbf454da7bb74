package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Source captures audio, typically the microphone used for voice commands.
// Read returns io.EOF once the source is stopped.
type Source interface {
	Start(ctx context.Context) error
	Read(ctx context.Context) (Chunk, error)
	Stop() error
	Config() Config
	Name() string
	io.Closer
}

// Sink plays narration audio. Write blocks while the device buffer is full
// and Clear drops whatever is still queued.
type Sink interface {
	Start(ctx context.Context) error
	Write(ctx context.Context, chunk Chunk) error
	Clear() error
	Stop() error
	Config() Config
	Name() string
	io.Closer
}

// NewSource opens a capture device for cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	logger, err := prepare("source", cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Backend == BackendMock {
		return NewMockSource(cfg, logger), nil
	}
	return newPortAudioSource(cfg, logger)
}

// NewSink opens a playback device for cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	logger, err := prepare("sink", cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Backend == BackendMock {
		return NewMockSink(cfg, logger), nil
	}
	return newPortAudioSink(cfg, logger)
}

func prepare(kind string, cfg Config, logger *slog.Logger) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audio %s: %w", kind, err)
	}
	switch cfg.Backend {
	case BackendMock, BackendPortAudio, "":
	default:
		return nil, fmt.Errorf("audio %s: unsupported backend %q", kind, cfg.Backend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening audio "+kind,
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)
	return logger, nil
}
