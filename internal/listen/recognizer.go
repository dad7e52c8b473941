package listen

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hbenali/friday/internal/logger"
)

// Recognizer converts a captured WAV file into text. Implementations
// return ErrNoMatch when the audio held no intelligible speech and any
// other error for backend failures (network, process, model).
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, wavPath string) (string, error)
}

// Chain is a two-backend recognizer that prefers the primary and
// switches to the fallback when the primary fails. Once the fallback
// succeeds it stays active until it fails itself, at which point the
// primary is retried. A no-match from either backend does not flip the
// sticky state: the backend worked, the user just wasn't intelligible.
type Chain struct {
	primary  Recognizer
	fallback Recognizer
	log      *logger.Logger

	fallbackActive atomic.Bool
}

// NewChain builds the recognition chain. fallback may be nil, in which
// case primary failures surface directly.
func NewChain(primary, fallback Recognizer, log *logger.Logger) *Chain {
	return &Chain{primary: primary, fallback: fallback, log: log}
}

// Name reports the currently preferred backend.
func (c *Chain) Name() string {
	if c.fallbackActive.Load() && c.fallback != nil {
		return c.fallback.Name()
	}
	return c.primary.Name()
}

// Recognize runs the chain and returns the transcript and the name of
// the backend that produced it.
func (c *Chain) Recognize(ctx context.Context, wavPath string) (string, error) {
	text, _, err := c.RecognizeWithBackend(ctx, wavPath)
	return text, err
}

// RecognizeWithBackend is Recognize plus the winning backend's name.
func (c *Chain) RecognizeWithBackend(ctx context.Context, wavPath string) (string, string, error) {
	if c.fallback == nil {
		text, err := c.primary.Recognize(ctx, wavPath)
		return text, c.primary.Name(), err
	}

	first, second := c.primary, c.fallback
	if c.fallbackActive.Load() {
		first, second = c.fallback, c.primary
	}

	text, firstErr := first.Recognize(ctx, wavPath)
	if firstErr == nil {
		return text, first.Name(), nil
	}
	if errors.Is(firstErr, ErrNoMatch) {
		c.log.Debug("recognize: %s heard nothing intelligible", first.Name())
	} else {
		c.log.Warn("recognize: %s failed: %v", first.Name(), firstErr)
	}

	text, secondErr := second.Recognize(ctx, wavPath)
	if secondErr == nil {
		// The order flips only on real backend failures.
		if !errors.Is(firstErr, ErrNoMatch) {
			c.fallbackActive.Store(second == c.fallback)
		}
		return text, second.Name(), nil
	}

	if errors.Is(firstErr, ErrNoMatch) && errors.Is(secondErr, ErrNoMatch) {
		return "", "", ErrNoMatch
	}
	return "", "", fmt.Errorf("%s failed: %v; %s failed: %w",
		first.Name(), firstErr, second.Name(), secondErr)
}
