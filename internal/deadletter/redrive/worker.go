// Package redrive periodically re-applies transient failures from the
// failure sink. Records are claimed through the store's status guard so
// multiple workers can run without double-applying a grade.
package redrive

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gradegate/internal/deadletter"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/retry"
)

// Applier re-applies one raw webhook payload end to end.
type Applier interface {
	Apply(ctx context.Context, payload json.RawMessage) error
}

// RunResult summarizes one scan.
type RunResult struct {
	Scanned   int
	Resolved  int
	Requeued  int
	Exhausted int
}

// Worker drives the periodic re-drive loop.
type Worker struct {
	store     deadletter.Store
	applier   Applier
	executor  *retry.Executor
	retryCfg  retry.Config
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	batchSize int
}

// Option configures the Worker.
type Option func(*Worker)

// WithInterval sets the scan interval.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize bounds how many pending records one scan picks up.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithRetryConfig overrides the per-record retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(w *Worker) {
		w.retryCfg = cfg
	}
}

// New creates a Worker. A nil logger falls back to slog.Default().
func New(store deadletter.Store, applier Applier, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		store:     store,
		applier:   applier,
		executor:  retry.New(logger),
		retryCfg:  retry.DefaultConfig(),
		logger:    logger,
		interval:  time.Minute,
		batchSize: 50,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the scan loop until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			res, err := w.RunOnce(ctx)
			duration := time.Since(start)

			if err != nil {
				w.logger.ErrorContext(ctx, "redrive scan failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if w.metrics != nil {
					w.metrics.RunsTotal.WithLabelValues("error").Inc()
					w.metrics.DurationSeconds.Observe(duration.Seconds())
				}
				continue
			}

			if res.Scanned > 0 {
				w.logger.InfoContext(ctx, "redrive scan completed",
					"scanned", res.Scanned,
					"resolved", res.Resolved,
					"requeued", res.Requeued,
					"exhausted", res.Exhausted,
					"duration_ms", duration.Milliseconds(),
				)
			}
			if w.metrics != nil {
				w.metrics.RunsTotal.WithLabelValues("success").Inc()
				w.metrics.DurationSeconds.Observe(duration.Seconds())
			}

		case <-ctx.Done():
			w.logger.InfoContext(ctx, "redrive worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single scan over pending transient records.
func (w *Worker) RunOnce(ctx context.Context) (*RunResult, error) {
	pending, err := w.store.List(ctx, deadletter.StatusPending, w.batchSize)
	if err != nil {
		return nil, err
	}

	res := &RunResult{}
	for i := range pending {
		record := &pending[i]
		if !record.CanRetry() {
			continue
		}
		res.Scanned++
		w.redriveOne(ctx, record, res)

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

func (w *Worker) redriveOne(ctx context.Context, record *deadletter.FailedWebhook, res *RunResult) {
	claimed, err := w.store.Claim(ctx, record.ID, deadletter.StatusPending)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to claim record for redrive",
			"record_id", record.ID,
			"error", err,
		)
		return
	}
	if !claimed {
		return
	}

	applyErr := w.executor.Do(ctx, w.retryCfg, "redrive_apply", func(ctx context.Context) error {
		return w.applier.Apply(ctx, record.Payload)
	})
	if applyErr == nil {
		if err := w.store.MarkSuccess(ctx, record.ID); err != nil {
			w.logger.ErrorContext(ctx, "failed to resolve redriven record",
				"record_id", record.ID,
				"error", err,
			)
			return
		}
		res.Resolved++
		if w.metrics != nil {
			w.metrics.ResolvedTotal.Inc()
		}
		w.logger.InfoContext(ctx, "failed webhook resolved by redrive",
			"record_id", record.ID,
			"submission_id", record.SubmissionID,
			"retry_count", record.RetryCount,
		)
		return
	}

	transient := dErrors.IsTransient(applyErr)
	updated, err := w.store.IncrementRetry(ctx, record.ID, applyErr.Error(), transient)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to update record after redrive failure",
			"record_id", record.ID,
			"error", err,
		)
		return
	}

	if updated.Status == deadletter.StatusFailed {
		res.Exhausted++
		if w.metrics != nil {
			w.metrics.ExhaustedTotal.Inc()
		}
		w.logger.WarnContext(ctx, "failed webhook exhausted redrive attempts",
			"record_id", record.ID,
			"submission_id", record.SubmissionID,
			"retry_count", updated.RetryCount,
			"transient", transient,
			"error", applyErr,
		)
		return
	}

	res.Requeued++
	if w.metrics != nil {
		w.metrics.RequeuedTotal.Inc()
	}
}
