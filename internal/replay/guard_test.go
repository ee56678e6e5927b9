package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gradegate/pkg/domain-errors"
	"gradegate/internal/replay/store"
)

func newGuard(t *testing.T, clock *time.Time) *Guard {
	t.Helper()
	markers := store.NewMemoryMarkerStore(store.WithClock(func() time.Time { return *clock }))
	g, err := New(markers, DefaultConfig(), nil, WithClock(func() time.Time { return *clock }))
	require.NoError(t, err)
	return g
}

func TestCheckAcceptsFreshDelivery(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)

	assert.NoError(t, g.Check(context.Background(), 123, clock.Add(-10*time.Second)))
}

func TestCheckRejectsTimestampOlderThanMaxAge(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)

	// 301 seconds old with a 300 second max age.
	err := g.Check(context.Background(), 123, clock.Add(-301*time.Second))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeStaleTimestamp, dErrors.CodeOf(err))
}

func TestCheckAcceptsTimestampExactlyAtMaxAge(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)

	assert.NoError(t, g.Check(context.Background(), 123, clock.Add(-300*time.Second)))
}

func TestCheckRejectsFarFutureTimestamp(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)

	err := g.Check(context.Background(), 123, clock.Add(2*time.Minute))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeStaleTimestamp, dErrors.CodeOf(err))
}

func TestCheckRejectsDuplicateWithinDedupWindow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, 123, clock))

	clock = clock.Add(30 * time.Second)
	err := g.Check(ctx, 123, clock)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeReplay, dErrors.CodeOf(err))
}

func TestCheckAcceptsSameSubjectAfterDedupWindow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, 123, clock))

	clock = clock.Add(601 * time.Second)
	assert.NoError(t, g.Check(ctx, 123, clock))
}

func TestCheckDifferentSubjectsIndependent(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, 123, clock))
	assert.NoError(t, g.Check(ctx, 456, clock))
}

func TestForgetAllowsRedelivery(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, 123, clock))
	g.Forget(ctx, 123)
	assert.NoError(t, g.Check(ctx, 123, clock))
}

// Concurrent duplicates race on the marker store; exactly one may win.
func TestCheckConcurrentDuplicatesSingleWinner(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &clock)

	const workers = 16
	var wg sync.WaitGroup
	accepted := make(chan struct{}, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Check(context.Background(), 777, clock); err == nil {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)

	assert.Len(t, accepted, 1)
}
