// Package hearing turns microphone audio into transcripts: spectral-flux
// voice activity detection splits the stream into utterances, whisper.cpp
// transcribes them, and each utterance can be kept as a WAV file.
package hearing

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// VAD computes the spectral flux of consecutive audio frames. A sharp rise
// in flux marks the onset of speech.
type VAD struct {
	size int
	prev []float64
	in   []float64
}

// NewVAD creates a detector for frames of size samples. Shorter frames
// are zero padded, longer ones truncated.
func NewVAD(size int) *VAD {
	return &VAD{
		size: size,
		prev: make([]float64, size/2+1),
		in:   make([]float64, size),
	}
}

// Flux returns the sum of positive magnitude changes between this frame's
// spectrum and the previous frame's.
func (v *VAD) Flux(samples []int16) float64 {
	n := copyNormalized(v.in, samples)
	clear(v.in[n:])

	spectrum := fft.FFTReal(v.in)

	var flux float64
	for i := range v.prev {
		mag := cmplx.Abs(spectrum[i])
		if d := mag - v.prev[i]; d > 0 {
			flux += d
		}
		v.prev[i] = mag
	}
	return flux
}

// Reset forgets the previous spectrum.
func (v *VAD) Reset() {
	clear(v.prev)
}

func copyNormalized(dst []float64, src []int16) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i]) / 32768
	}
	return n
}
