package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fi-losopher/Perception/pkg/audio"
	"github.com/fi-losopher/Perception/pkg/tts"
)

// TTSVoice synthesizes phrases and plays them on a local audio device.
type TTSVoice struct {
	provider tts.Provider
	player   *audio.Player
}

// NewTTSVoice creates a voice from a synthesis provider and a player.
func NewTTSVoice(provider tts.Provider, player *audio.Player) *TTSVoice {
	return &TTSVoice{provider: provider, player: player}
}

// Say synthesizes text and plays it to the end or until ctx is cancelled.
func (v *TTSVoice) Say(ctx context.Context, text string) error {
	res, err := v.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	if len(res.Audio) == 0 {
		return tts.ErrEmptyAudio
	}
	return v.player.Play(ctx, res.Audio, res.Format.SampleRate)
}

// Broadcaster fans a JSON value out to connected dashboards.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// Event is a speech message sent to dashboards.
type Event struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event types sent to dashboards.
const (
	EventSpeak = "speak"
	EventHush  = "hush"
)

// BrowserVoice asks connected dashboards to speak with the browser engine.
// Say returns as soon as the request is sent.
type BrowserVoice struct {
	out Broadcaster
}

// NewBrowserVoice creates a voice that broadcasts speak events.
func NewBrowserVoice(out Broadcaster) *BrowserVoice {
	return &BrowserVoice{out: out}
}

// Say broadcasts a speak event.
func (v *BrowserVoice) Say(ctx context.Context, text string) error {
	return v.out.BroadcastJSON(Event{Type: EventSpeak, Text: text})
}

// Hush tells dashboards to stop the current phrase.
func (v *BrowserVoice) Hush() {
	_ = v.out.BroadcastJSON(Event{Type: EventHush})
}

// LogVoice writes phrases to the log.
type LogVoice struct {
	logger *slog.Logger
}

// NewLogVoice creates a voice that logs.
func NewLogVoice(logger *slog.Logger) *LogVoice {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogVoice{logger: logger}
}

// Say logs text.
func (v *LogVoice) Say(ctx context.Context, text string) error {
	v.logger.Info("say", "text", text)
	return nil
}

var (
	_ Voice  = (*TTSVoice)(nil)
	_ Voice  = (*BrowserVoice)(nil)
	_ Husher = (*BrowserVoice)(nil)
	_ Voice  = (*LogVoice)(nil)
)
