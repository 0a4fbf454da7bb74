package hearing

import (
	"time"

	"github.com/fi-losopher/Perception/pkg/audio"
)

// SegmenterConfig tunes utterance detection.
type SegmenterConfig struct {
	SampleRate int
	FrameSize  int

	// OnsetRatio is how much the flux must rise over its running value to
	// start an utterance.
	OnsetRatio float64

	// MinLevel is the RMS below which a frame counts as silence.
	MinLevel float64

	// QuietTime of continuous silence ends an utterance.
	QuietTime time.Duration

	// MinSpeech discards utterances shorter than this.
	MinSpeech time.Duration

	// MaxUtterance forces an utterance to end.
	MaxUtterance time.Duration

	// PreRoll frames of audio before the onset are kept.
	PreRoll int
}

// DefaultSegmenterConfig returns settings for 16kHz mono speech.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:   16000,
		FrameSize:    512,
		OnsetRatio:   1.75,
		MinLevel:     0.01,
		QuietTime:    500 * time.Millisecond,
		MinSpeech:    150 * time.Millisecond,
		MaxUtterance: 10 * time.Second,
		PreRoll:      4,
	}
}

func (c SegmenterConfig) samples(d time.Duration) int {
	return int(d.Seconds() * float64(c.SampleRate))
}

// Segmenter cuts a continuous sample stream into utterances.
type Segmenter struct {
	cfg SegmenterConfig
	vad *VAD

	preroll   *ring
	pending   []int16
	utterance []int16
	lastFlux  float64
	active    bool
	speech    int // voiced samples in the current utterance
	quiet     int // trailing silent samples
}

// NewSegmenter creates a segmenter.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		cfg:     cfg,
		vad:     NewVAD(cfg.FrameSize),
		preroll: newRing(cfg.FrameSize * max(cfg.PreRoll, 1)),
	}
}

// Push feeds samples and returns a finished utterance when one ends.
// Samples are consumed in FrameSize frames; a trailing partial frame is
// held until the next call.
func (s *Segmenter) Push(samples []int16) ([]int16, bool) {
	s.pending = append(s.pending, samples...)

	var out []int16
	var done bool
	for len(s.pending) >= s.cfg.FrameSize {
		frame := s.pending[:s.cfg.FrameSize]
		if utt, ok := s.frame(frame); ok && !done {
			out, done = utt, true
		}
		s.pending = s.pending[s.cfg.FrameSize:]
	}
	s.pending = append([]int16(nil), s.pending...)
	return out, done
}

func (s *Segmenter) frame(frame []int16) ([]int16, bool) {
	flux := s.vad.Flux(frame)
	level := audio.RMS(frame)

	if !s.active {
		s.preroll.add(frame)
		if flux > 0 && flux >= s.lastFlux*s.cfg.OnsetRatio && level >= s.cfg.MinLevel {
			s.active = true
			s.utterance = s.preroll.read()
			s.speech = len(frame)
			s.quiet = 0
			s.lastFlux = flux
			return nil, false
		}
		s.lastFlux = flux
		return nil, false
	}

	s.utterance = append(s.utterance, frame...)
	if level < s.cfg.MinLevel {
		s.quiet += len(frame)
	} else {
		s.quiet = 0
		s.speech += len(frame)
		s.lastFlux = flux
	}

	if s.quiet >= s.cfg.samples(s.cfg.QuietTime) || len(s.utterance) >= s.cfg.samples(s.cfg.MaxUtterance) {
		return s.finish()
	}
	return nil, false
}

func (s *Segmenter) finish() ([]int16, bool) {
	utt := s.utterance
	speech := s.speech

	s.active = false
	s.utterance = nil
	s.speech = 0
	s.quiet = 0
	s.preroll.reset()

	if speech < s.cfg.samples(s.cfg.MinSpeech) {
		return nil, false
	}
	return utt, true
}

// Active reports whether an utterance is in progress.
func (s *Segmenter) Active() bool {
	return s.active
}

// ring keeps the most recent samples before an onset.
type ring struct {
	buf  []int16
	head int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]int16, size)}
}

func (r *ring) add(samples []int16) {
	for _, v := range samples {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		if r.head == 0 {
			r.full = true
		}
	}
}

func (r *ring) read() []int16 {
	if !r.full {
		return append([]int16(nil), r.buf[:r.head]...)
	}
	out := make([]int16, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	return append(out, r.buf[:r.head]...)
}

func (r *ring) reset() {
	r.head = 0
	r.full = false
}
