package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first try).
	MaxAttempts int
	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// RetryableErrors are errors that should trigger a retry.
	RetryableErrors []error
	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, nextBackoff time.Duration)
}

// DefaultConfig returns sensible defaults for retry.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

// Do executes fn with retries according to cfg.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			return err
		}
		if !isRetryable(err, cfg.RetryableErrors) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := calculateBackoff(backoff, cfg.MaxBackoff, cfg.Jitter)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, sleep)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retries and returns the result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}
	for _, retryable := range retryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}
	return false
}

func calculateBackoff(backoff, maxBackoff time.Duration, jitter float64) time.Duration {
	if jitter > 0 {
		jitterAmount := float64(backoff) * jitter * (rand.Float64()*2 - 1)
		backoff = backoff + time.Duration(jitterAmount)
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

// Permanent wraps an error to indicate it should not be retried.
type Permanent struct {
	Err error
}

func (e Permanent) Error() string {
	return e.Err.Error()
}

func (e Permanent) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var permanent Permanent
	return errors.As(err, &permanent)
}

// MarkPermanent marks an error as permanent (non-retryable).
func MarkPermanent(err error) error {
	return Permanent{Err: err}
}
