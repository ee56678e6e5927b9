package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gradegate/internal/platform/privacy"
	"gradegate/internal/ratelimit/config"
	"gradegate/internal/ratelimit/metrics"
	"gradegate/internal/ratelimit/models"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

// BucketStore defines the persistence interface for rate limit buckets.
type BucketStore interface {
	// Allow checks if a request is allowed and records it.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)

	// Reset clears the bucket for a key.
	Reset(ctx context.Context, key string) error
}

// BypassStore defines the read-only interface for checking exemption membership.
type BypassStore interface {
	IsBypassed(ctx context.Context, identity string) (bool, error)
}

// Service handles admission-control decisions for all protected scopes.
type Service struct {
	buckets BucketStore
	bypass  BypassStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	config  *config.Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(buckets BucketStore, bypass BypassStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, fmt.Errorf("buckets store is required")
	}
	if bypass == nil {
		return nil, fmt.Errorf("bypass store is required")
	}

	svc := &Service{
		buckets: buckets,
		bypass:  bypass,
		config:  config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// Allow decides admission for one request from identity within scope.
// Exempt identities are always admitted with full remaining capacity.
func (s *Service) Allow(ctx context.Context, scope models.Scope, identity string) (*models.Result, error) {
	limit, window := s.config.GetLimit(scope)

	exempt, err := s.bypass.IsBypassed(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check bypass list")
	}
	if exempt {
		if s.metrics != nil {
			s.metrics.Bypassed.WithLabelValues(string(scope)).Inc()
		}
		return &models.Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   time.Now().Add(window),
		}, nil
	}

	key := models.NewKey(scope, identity)
	result, err := s.buckets.Allow(ctx, key.String(), limit, window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}

	if result.Allowed {
		if s.metrics != nil {
			s.metrics.Allowed.WithLabelValues(string(scope)).Inc()
		}
		return result, nil
	}

	if s.metrics != nil {
		s.metrics.Rejected.WithLabelValues(string(scope)).Inc()
	}
	s.logger.WarnContext(ctx, "rate limit exceeded",
		"scope", scope,
		"identity_prefix", privacy.AnonymizeIP(identity),
		"limit", limit,
		"window_seconds", int(window.Seconds()),
		"retry_after", result.RetryAfter,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}
