package deadletter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a failure sink for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*FailedWebhook
	now     func() time.Time
}

// MemoryOption configures the memory store.
type MemoryOption func(*InMemoryStore)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		records: make(map[uuid.UUID]*FailedWebhook),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Record(_ context.Context, record FailedWebhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.records[record.ID] = &record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*FailedWebhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) List(_ context.Context, status Status, limit int) ([]FailedWebhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FailedWebhook
	for _, record := range s.records {
		if status != "" && record.Status != status {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Claim(_ context.Context, id uuid.UUID, from Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if record.Status != from || from == StatusProcessing {
		return false, nil
	}
	record.Status = StatusProcessing
	record.UpdatedAt = s.now()
	return true, nil
}

func (s *InMemoryStore) IncrementRetry(_ context.Context, id uuid.UUID, cause string, transient bool) (*FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	if record.RetryCount < MaxRetries {
		record.RetryCount++
	}
	record.Error = cause
	record.IsTransient = transient
	record.LastRetryAt = &now
	record.UpdatedAt = now

	if !transient || record.RetryCount >= MaxRetries {
		record.Status = StatusFailed
	} else {
		record.Status = StatusPending
	}

	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) MarkSuccess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.Status = StatusSuccess
	record.UpdatedAt = s.now()
	return nil
}
