// Package revocation keeps a list of token IDs that were logged out before
// their expiry. Entries live only until the token would have expired anyway.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Store records revoked token IDs.
type Store interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks jti as revoked until expiresAt. Already expired tokens are ignored.
func (s *MemoryStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !expiresAt.After(now) {
		return nil
	}
	s.entries[jti] = expiresAt
	s.purgeLocked(now)
	return nil
}

// IsRevoked reports whether jti is currently revoked.
func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[jti]
	if !ok {
		return false, nil
	}
	if !until.After(s.now()) {
		delete(s.entries, jti)
		return false, nil
	}
	return true, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	return len(s.entries)
}

func (s *MemoryStore) purgeLocked(now time.Time) {
	for jti, until := range s.entries {
		if !until.After(now) {
			delete(s.entries, jti)
		}
	}
}
