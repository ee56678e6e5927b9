package store

import (
	"context"
	"sync"
	"time"
)

// MemoryMarkerStore is an in-process dedup fence for tests and development.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[string]time.Time // key -> expiry
	now     func() time.Time
}

// Option configures the memory store.
type Option func(*MemoryMarkerStore)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryMarkerStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryMarkerStore creates an empty marker store.
func NewMemoryMarkerStore(opts ...Option) *MemoryMarkerStore {
	s := &MemoryMarkerStore{
		markers: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryMarkerStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.markers[key]; ok && expiry.After(now) {
		return false, nil
	}
	s.markers[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryMarkerStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, key)
	return nil
}
