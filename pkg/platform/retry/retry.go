// Package retry provides a generic run-with-exponential-backoff wrapper for
// operations crossing process boundaries. The backoff wait is a cancellable
// timer select, never a bare time.Sleep, so a slow retry sequence cannot
// hold a worker hostage past its request deadline.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	dErrors "gradegate/pkg/domain-errors"
)

// Config captures the parameters governing one retry policy.
// It is an immutable value object constructed per call site.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
}

// DefaultConfig returns the standard policy: three attempts with delays of
// 1s and 2s between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Base:         2.0,
	}
}

// Executor runs operations under a retry policy with structured logging of
// every attempt.
type Executor struct {
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper overrides the backoff wait, used by tests to observe delays
// without real time passing.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New creates an Executor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, a non-retryable error occurs, the context is
// done, or cfg.MaxAttempts is exhausted. The last-seen error is returned on
// exhaustion. There is no delay after the final attempt.
func (e *Executor) Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "retry abandoned: context done")
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				e.logger.InfoContext(ctx, "operation succeeded after retries",
					"operation", name,
					"failed_attempts", attempt,
				)
			}
			return nil
		}

		if !retryable(lastErr) {
			e.logger.WarnContext(ctx, "operation failed with non-retryable error",
				"operation", name,
				"attempt", attempt+1,
				"error", lastErr,
			)
			return lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := DelayFor(cfg, attempt)
		e.logger.WarnContext(ctx, "operation failed, backing off",
			"operation", name,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay.String(),
			"error", lastErr,
		)

		if err := e.sleep(ctx, delay); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "retry abandoned mid-backoff")
		}
	}

	e.logger.ErrorContext(ctx, "operation exhausted all retry attempts",
		"operation", name,
		"attempts", cfg.MaxAttempts,
		"error", lastErr,
	)
	return dErrors.Wrap(lastErr, dErrors.CodeTransient, "retries exhausted for "+name)
}

// DelayFor computes the backoff before attempt+1: min(initial * base^attempt, max).
func DelayFor(cfg Config, attempt int) time.Duration {
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Base, float64(attempt)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

// retryable reports whether another attempt could help. Errors carrying an
// explicit non-transient domain code stop the loop immediately; unclassified
// errors are assumed transient.
func retryable(err error) bool {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		return true
	}
	return dErrors.IsTransient(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
