package hearing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fi-losopher/Perception/pkg/audio"
	"github.com/fi-losopher/Perception/pkg/perception"
)

// Recognizer is a speech recognition engine over a local microphone.
// One call to Run is one recognition session.
type Recognizer struct {
	open        func() (audio.Source, error)
	transcriber Transcriber
	recorder    *Recorder
	segCfg      SegmenterConfig
	logger      *slog.Logger
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithRecorder keeps every utterance as a WAV file.
func WithRecorder(r *Recorder) Option {
	return func(rec *Recognizer) { rec.recorder = r }
}

// WithSegmenter overrides utterance detection settings.
func WithSegmenter(cfg SegmenterConfig) Option {
	return func(rec *Recognizer) { rec.segCfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rec *Recognizer) { rec.logger = l }
}

// NewRecognizer creates a recognizer. open is called at the start of every
// session to acquire the microphone.
func NewRecognizer(open func() (audio.Source, error), t Transcriber, opts ...Option) *Recognizer {
	r := &Recognizer{
		open:        open,
		transcriber: t,
		segCfg:      DefaultSegmenterConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "hearing")
	return r
}

// Run captures until ctx is cancelled or the source ends, emitting one
// transcript per utterance. A nil return means the session ended normally.
func (r *Recognizer) Run(ctx context.Context, emit func(string)) error {
	src, err := r.open()
	if err != nil {
		return fmt.Errorf("%w: open microphone: %v", perception.ErrRecognition, err)
	}
	defer src.Close()

	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("%w: start microphone: %v", perception.ErrRecognition, err)
	}

	seg := NewSegmenter(r.segCfg)
	for {
		chunk, err := src.Read(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", perception.ErrRecognition, err)
		}

		mono := chunk.Mono()
		samples := audio.Resample(mono.Samples, mono.SampleRate, r.segCfg.SampleRate)

		utt, ok := seg.Push(samples)
		if !ok {
			continue
		}
		r.handle(ctx, utt, emit)
	}
}

func (r *Recognizer) handle(ctx context.Context, utt []int16, emit func(string)) {
	if r.recorder != nil {
		if path, err := r.recorder.Save(utt, r.segCfg.SampleRate); err != nil {
			r.logger.Warn("utterance not recorded", "error", err)
		} else {
			r.logger.Debug("utterance recorded", "path", path)
		}
	}

	text, err := r.transcriber.Transcribe(ctx, audio.ToFloat32(utt))
	if err != nil {
		r.logger.Warn("transcription failed", "error", err, "samples", len(utt))
		return
	}
	if text == "" {
		return
	}
	r.logger.Info("heard", "text", text)
	emit(text)
}
