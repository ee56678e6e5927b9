// Package bypass tracks identities exempt from admission control: internal
// service accounts and operator hosts.
package bypass

import (
	"context"
	"sync"
)

// InMemoryBypassStore is a concurrency-safe set of exempt identities loaded
// at startup from deployment configuration.
type InMemoryBypassStore struct {
	mu         sync.RWMutex
	identities map[string]struct{}
}

// NewInMemoryBypassStore creates a store pre-populated with the given identities.
func NewInMemoryBypassStore(identities ...string) *InMemoryBypassStore {
	s := &InMemoryBypassStore{identities: make(map[string]struct{}, len(identities))}
	for _, id := range identities {
		if id != "" {
			s.identities[id] = struct{}{}
		}
	}
	return s
}

// IsBypassed checks whether an identity skips rate limiting.
func (s *InMemoryBypassStore) IsBypassed(ctx context.Context, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identities[identity]
	return ok, nil
}

// Add registers an identity as exempt.
func (s *InMemoryBypassStore) Add(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity] = struct{}{}
	return nil
}

// Remove deletes an identity from the exemption set.
func (s *InMemoryBypassStore) Remove(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, identity)
	return nil
}
