package embedpipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mcpcontext/browser/internal/errs"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including the initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Classify reports whether err should be retried. The pipeline uses this to
// distinguish transient provider errors (Timeout, RateLimited,
// TransientBackend) from permanent ones (InvalidInput, AuthFailed,
// Unsupported) so permanent errors fail the batch immediately instead of
// being retried to exhaustion.
type Classify func(err error) bool

// ClassifyByCode retries only errors carrying an *errs.Error with a
// Retryable code; any other error (including bare, unclassified errors) is
// treated as permanent.
func ClassifyByCode(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Retry executes fn with exponential backoff, retrying only errors that
// classify pass accepts. It returns the last error if classify rejects it or
// retries are exhausted. Context cancellation is checked before each attempt
// and during the backoff wait.
func Retry(ctx context.Context, cfg RetryConfig, classify Classify, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if classify != nil && !classify(err) {
			return err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		waitDelay := delay
		if cfg.Jitter {
			jitterFactor := 0.5 + rand.Float64()*0.5
			waitDelay = time.Duration(float64(delay) * jitterFactor)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDelay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
