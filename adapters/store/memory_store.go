package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/doctorauth/ports"
)

// Option configures the in-memory stores
type Option func(*clocked)

// WithClock overrides the clock used to expire entries
func WithClock(now func() time.Time) Option {
	return func(c *clocked) {
		c.now = now
	}
}

type clocked struct {
	now func() time.Time
}

func newClocked(opts []Option) clocked {
	c := clocked{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// MemoryStore is an in-memory implementation of the RevocationStore interface.
// It is only correct for single-instance deployments.
type MemoryStore struct {
	clocked
	liveTokens map[string]time.Time
	mu         sync.Mutex
}

var _ ports.RevocationStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory revocation store
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		clocked:    newClocked(opts),
		liveTokens: make(map[string]time.Time),
	}
}

// Put marks a refresh token as live until ttl elapses
func (s *MemoryStore) Put(ctx context.Context, identity, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("refresh token ttl must be positive, got %s", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.liveTokens[revocationKey(identity, token)] = now.Add(ttl)
	s.sweep(now)

	return nil
}

// GetAndDelete removes a live token and reports whether it was live
func (s *MemoryStore) GetAndDelete(ctx context.Context, identity, token string) (bool, error) {
	key := revocationKey(identity, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, exists := s.liveTokens[key]
	if !exists {
		return false, nil
	}
	delete(s.liveTokens, key)

	return s.now().Before(expiresAt), nil
}

// Delete revokes a token. Deleting an unknown token is not an error.
func (s *MemoryStore) Delete(ctx context.Context, identity, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.liveTokens, revocationKey(identity, token))
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of entries, expired ones included until swept
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.liveTokens)
}

// sweep drops expired entries. Caller holds mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, expiresAt := range s.liveTokens {
		if !now.Before(expiresAt) {
			delete(s.liveTokens, key)
		}
	}
}
