package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider names accepted by New.
const (
	NameOpenAI = "openai"
	NameGoogle = "google"
	NameChain  = "chain"
	NameMock   = "mock"
)

// Keys carries per-service credentials for New.
type Keys struct {
	OpenAI string
	Google string
}

// New builds the named provider. The "chain" provider uses OpenAI first
// and Google second, skipping whichever cannot be configured.
func New(ctx context.Context, name string, keys Keys, logger *slog.Logger, opts ...Option) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]Option{WithLogger(logger)}, opts...)

	switch name {
	case NameOpenAI:
		return NewOpenAI(append(opts, WithAPIKey(keys.OpenAI))...)
	case NameGoogle:
		return NewGoogle(ctx, append(opts, WithAPIKey(keys.Google))...)
	case NameMock:
		return NewMock(), nil
	case NameChain:
		var providers []Provider
		if p, err := NewOpenAI(append(opts, WithAPIKey(keys.OpenAI))...); err == nil {
			providers = append(providers, p)
		} else {
			logger.Warn("openai tts unavailable", "error", err)
		}
		if p, err := NewGoogle(ctx, append(opts, WithAPIKey(keys.Google))...); err == nil {
			providers = append(providers, p)
		} else {
			logger.Warn("google tts unavailable", "error", err)
		}
		return NewChainWithLogger(logger, providers...)
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", name)
	}
}
