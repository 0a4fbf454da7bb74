package tts

import (
	"fmt"
	"log/slog"
	"time"
)

// Speaking rate limits shared by both services. Experienced screen reader
// users often narrate well above 1.0.
const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
)

// Config holds provider settings, set through Options.
type Config struct {
	APIKey  string
	BaseURL string // service endpoint override, used in tests

	VoiceID      string
	ModelID      string
	LanguageCode string
	SpeakingRate float64 // 1.0 is normal
	OutputFormat Encoding

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // multiplied by the attempt number

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithVoice(voiceID string) Option { return func(c *Config) { c.VoiceID = voiceID } }
func WithModel(modelID string) Option { return func(c *Config) { c.ModelID = modelID } }
func WithLanguage(code string) Option { return func(c *Config) { c.LanguageCode = code } }
func WithSpeakingRate(rate float64) Option { return func(c *Config) { c.SpeakingRate = rate } }
func WithOutputFormat(format Encoding) Option { return func(c *Config) { c.OutputFormat = format } }
func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }
func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// WithRetry retries 429 and 5xx answers up to maxRetries times.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig returns US English at normal speed, 24kHz PCM.
func DefaultConfig() *Config {
	return &Config{
		LanguageCode: "en-US",
		SpeakingRate: 1.0,
		OutputFormat: EncodingPCM24,
		Timeout:      15 * time.Second,
		MaxRetries:   2,
		RetryDelay:   200 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Apply applies opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks credentials and the speaking rate.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.SpeakingRate < MinSpeakingRate || c.SpeakingRate > MaxSpeakingRate {
		return fmt.Errorf("tts: speaking rate %.2f outside [%.2f, %.2f]", c.SpeakingRate, MinSpeakingRate, MaxSpeakingRate)
	}
	return nil
}
