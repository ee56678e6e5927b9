package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisMarkers(t *testing.T) (*RedisMarkerStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMarkerStore(client), mr
}

func TestRedisAcquireIsFirstWriterWins(t *testing.T) {
	s, _ := newRedisMarkers(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisMarkerExpiresAfterTTL(t *testing.T) {
	s, mr := newRedisMarkers(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(10*time.Minute + time.Second)

	ok, err = s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReleaseRemovesMarker(t *testing.T) {
	s, _ := newRedisMarkers(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "replay:123"))

	ok, err = s.Acquire(ctx, "replay:123", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
