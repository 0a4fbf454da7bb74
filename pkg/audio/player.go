package audio

import (
	"context"
	"log/slog"
	"sync"
)

// Player plays PCM16 buffers through a Sink. Starting a new playback
// cancels the one in progress.
type Player struct {
	sink   Sink
	logger *slog.Logger

	playMu sync.Mutex // held for the duration of a playback

	mu      sync.Mutex
	cancel  context.CancelFunc
	playing bool

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()
}

// NewPlayer creates a player writing to sink.
func NewPlayer(sink Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		sink:   sink,
		logger: logger.With("component", "audio.player"),
	}
}

// Play writes mono PCM16 audio recorded at sampleRate to the sink,
// resampling to the sink rate. It returns ctx.Err() when interrupted.
func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	p.playMu.Lock()
	defer p.playMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := p.sink.Config()
	samples := Resample(BytesToSamples(pcm), sampleRate, cfg.SampleRate)
	if len(samples) == 0 {
		return nil
	}

	if err := p.sink.Start(ctx); err != nil {
		return err
	}

	p.setPlaying(true)
	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
	defer func() {
		p.setPlaying(false)
		if p.OnPlaybackEnd != nil {
			p.OnPlaybackEnd()
		}
	}()

	step := max(cfg.BufferSize()*4, 1)
	for start := 0; start < len(samples); start += step {
		if err := ctx.Err(); err != nil {
			p.sink.Clear()
			p.logger.Debug("playback interrupted", "played", start, "total", len(samples))
			return err
		}
		end := min(start+step, len(samples))
		chunk := Chunk{Samples: samples[start:end], SampleRate: cfg.SampleRate, Channels: 1}
		if err := p.sink.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				p.sink.Clear()
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// Cancel stops the playback in progress, if any.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.sink.Clear()
}

// IsPlaying reports whether audio is being written.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) setPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()
}

// Close cancels playback and closes the sink.
func (p *Player) Close() error {
	p.Cancel()
	p.playMu.Lock()
	defer p.playMu.Unlock()
	return p.sink.Close()
}
