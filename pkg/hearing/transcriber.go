package hearing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Transcriber converts 16kHz mono float samples in [-1, 1) to text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, samples []float32) (string, error)

// Transcribe implements Transcriber.
func (f TranscriberFunc) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return f(ctx, samples)
}

// Whisper transcribes with a local whisper.cpp model.
type Whisper struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
}

// NewWhisper loads the ggml model at path.
func NewWhisper(path, language string) (*Whisper, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("hearing: load whisper model %s: %w", path, err)
	}
	if language == "" {
		language = "en"
	}
	return &Whisper{model: model, language: language}, nil
}

// Transcribe runs the model over samples and joins the useful segments.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("hearing: whisper context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("hearing: whisper language %q: %w", w.language, err)
	}

	if err := wctx.Process(samples, nil); err != nil {
		return "", fmt.Errorf("hearing: whisper process: %w", err)
	}

	var texts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hearing: whisper segment: %w", err)
		}
		texts = append(texts, segment.Text)
	}
	return JoinSegments(texts), nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Close()
}

// JoinSegments joins transcript segments, dropping annotations such as
// "[BLANK_AUDIO]" or "(music)" and repeated segments.
func JoinSegments(segments []string) string {
	seen := make(map[string]bool, len(segments))
	var parts []string
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" || isAnnotation(s) || seen[s] {
			continue
		}
		seen[s] = true
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func isAnnotation(s string) bool {
	first, last := s[0], s[len(s)-1]
	return first == '(' || first == '[' || last == ')' || last == ']'
}

var _ Transcriber = (*Whisper)(nil)
