// Package replay rejects deliveries that are stale or duplicated. Two windows
// apply: MaxAge bounds clock skew and network delay for a single delivery,
// while DedupWindow protects an accepted subject id from redelivery by the
// sender's at-least-once semantics.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

// MarkerStore is the shared-cache fence for accepted subject ids. Acquire
// must be atomic (set-if-not-exists): two concurrent duplicate deliveries
// must never both observe "absent" and both proceed.
type MarkerStore interface {
	// Acquire sets the marker if absent and reports whether this caller won.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release removes the marker, used when processing fails before the
	// grade was applied so a legitimate redelivery can get through.
	Release(ctx context.Context, key string) error
}

// Config carries the two replay windows.
type Config struct {
	MaxAge      time.Duration
	DedupWindow time.Duration
}

// DefaultConfig matches the grading service's delivery contract.
func DefaultConfig() Config {
	return Config{
		MaxAge:      5 * time.Minute,
		DedupWindow: 10 * time.Minute,
	}
}

// futureSkewTolerance absorbs small clock differences between the grading
// service and our workers. Anything further in the future is rejected.
const futureSkewTolerance = 30 * time.Second

// Guard performs replay checks against a shared marker store.
type Guard struct {
	markers MarkerStore
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a Guard. A nil logger falls back to slog.Default().
func New(markers MarkerStore, cfg Config, logger *slog.Logger, opts ...Option) (*Guard, error) {
	if markers == nil {
		return nil, fmt.Errorf("marker store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{markers: markers, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check validates the embedded timestamp and acquires the dedup marker for
// subjectID. A stale timestamp yields CodeStaleTimestamp; a duplicate inside
// the dedup window yields CodeReplay.
func (g *Guard) Check(ctx context.Context, subjectID int64, timestamp time.Time) error {
	now := g.now()

	if age := now.Sub(timestamp); age > g.cfg.MaxAge {
		return dErrors.New(dErrors.CodeStaleTimestamp,
			fmt.Sprintf("timestamp is %.0fs old, max age %.0fs", age.Seconds(), g.cfg.MaxAge.Seconds()))
	}
	if ahead := timestamp.Sub(now); ahead > futureSkewTolerance {
		return dErrors.New(dErrors.CodeStaleTimestamp, "timestamp is in the future")
	}

	acquired, err := g.markers.Acquire(ctx, MarkerKey(subjectID), g.cfg.DedupWindow)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "replay marker store unavailable")
	}
	if !acquired {
		g.logger.WarnContext(ctx, "duplicate delivery rejected",
			"submission_id", subjectID,
			"dedup_window_seconds", int(g.cfg.DedupWindow.Seconds()),
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodeReplay,
			fmt.Sprintf("submission %d was already accepted within the dedup window", subjectID))
	}
	return nil
}

// Forget releases the marker for subjectID so the sender's redelivery is not
// blocked after a failure that never reached the grading applier.
func (g *Guard) Forget(ctx context.Context, subjectID int64) {
	if err := g.markers.Release(ctx, MarkerKey(subjectID)); err != nil {
		g.logger.ErrorContext(ctx, "failed to release replay marker",
			"submission_id", subjectID,
			"error", err,
		)
	}
}

// MarkerKey builds the cache key for a subject id.
func MarkerKey(subjectID int64) string {
	return fmt.Sprintf("replay:%d", subjectID)
}
