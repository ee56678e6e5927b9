package store

import (
	"context"
	"sync"

	"gradegate/internal/signature"
)

// MemoryStore keeps verification records in process memory for tests and
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []signature.LogRecord
}

// NewMemoryStore creates an empty in-memory signature log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, rec signature.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) ListBySubmission(ctx context.Context, submissionID int64) ([]signature.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []signature.LogRecord
	for _, rec := range s.records {
		if rec.SubmissionID == submissionID {
			out = append(out, rec)
		}
	}
	return out, nil
}
