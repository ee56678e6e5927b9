package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradegate/internal/ratelimit/config"
	"gradegate/internal/ratelimit/models"
	"gradegate/internal/ratelimit/store/bucket"
	"gradegate/internal/ratelimit/store/bypass"
)

func newService(t *testing.T, cfg *config.Config, bypassed ...string) *Service {
	t.Helper()
	svc, err := New(
		bucket.NewInMemoryBucketStore(),
		bypass.NewInMemoryBypassStore(bypassed...),
		WithConfig(cfg),
	)
	require.NoError(t, err)
	return svc
}

func smallConfig() *config.Config {
	return &config.Config{
		Scopes: map[models.Scope]config.ScopeLimit{
			models.ScopeWebhook: {Limit: 2, Window: time.Minute},
			models.ScopeOps:     {Limit: 1, Window: time.Minute},
		},
	}
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(nil, bypass.NewInMemoryBypassStore())
	assert.ErrorContains(t, err, "buckets store is required")

	_, err = New(bucket.NewInMemoryBucketStore(), nil)
	assert.ErrorContains(t, err, "bypass store is required")
}

func TestAllowEnforcesScopeLimit(t *testing.T) {
	svc := newService(t, smallConfig())
	ctx := context.Background()

	for range 2 {
		res, err := svc.Allow(ctx, models.ScopeWebhook, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := svc.Allow(ctx, models.ScopeWebhook, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
}

func TestScopesAreIndependent(t *testing.T) {
	svc := newService(t, smallConfig())
	ctx := context.Background()

	res, err := svc.Allow(ctx, models.ScopeOps, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = svc.Allow(ctx, models.ScopeOps, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// Same identity, different scope: untouched bucket.
	res, err = svc.Allow(ctx, models.ScopeWebhook, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBypassedIdentitySkipsCheck(t *testing.T) {
	svc := newService(t, smallConfig(), "10.0.0.1")
	ctx := context.Background()

	for range 10 {
		res, err := svc.Allow(ctx, models.ScopeWebhook, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	}
}

type failingBuckets struct{}

func (failingBuckets) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis: connection refused")
}
func (failingBuckets) Reset(context.Context, string) error { return nil }

func TestStoreErrorSurfacesToCaller(t *testing.T) {
	svc, err := New(failingBuckets{}, bypass.NewInMemoryBypassStore(), WithConfig(smallConfig()))
	require.NoError(t, err)

	_, err = svc.Allow(context.Background(), models.ScopeWebhook, "203.0.113.7")
	assert.ErrorContains(t, err, "failed to check rate limit")
}
