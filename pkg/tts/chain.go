package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Chain is a Provider that falls back through several services. It starts
// each phrase with whichever provider answered last, so a dead primary
// costs one failed request rather than one per phrase.
type Chain struct {
	providers []Provider
	logger    *slog.Logger

	mu        sync.Mutex
	preferred int
}

// NewChain creates a chain over providers in priority order.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize tries the preferred provider, then the rest in order.
// Cancellation stops the fallback immediately.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	c.mu.Lock()
	start := c.preferred
	c.mu.Unlock()

	var errs []error
	for n := range c.providers {
		i := (start + n) % len(c.providers)
		result, err := c.providers[i].Synthesize(ctx, text)
		if err == nil {
			if i != start {
				c.logger.Info("switched provider", "from", start, "to", i)
				c.mu.Lock()
				c.preferred = i
				c.mu.Unlock()
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("provider failed", "provider_index", i, "error", err)
	}
	return nil, &ChainError{Errors: errs}
}

// Preferred returns the index of the provider tried first.
func (c *Chain) Preferred() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferred
}

// Health succeeds when any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Providers returns the chain members in priority order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError carries each provider's failure for one phrase.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("tts chain: %d providers failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every provider error and ErrAllProvidersFailed.
func (e *ChainError) Unwrap() []error {
	return append([]error{ErrAllProvidersFailed}, e.Errors...)
}

var _ Provider = (*Chain)(nil)
