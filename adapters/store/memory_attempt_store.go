package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

type attemptEntry struct {
	record    core.AttemptRecord
	expiresAt time.Time
}

// MemoryAttemptStore is an in-memory implementation of the AttemptStore interface.
// Lockouts kept here are local to the process.
type MemoryAttemptStore struct {
	clocked
	entries map[string]attemptEntry
	mu      sync.Mutex
}

var _ ports.AttemptStore = (*MemoryAttemptStore)(nil)

// NewMemoryAttemptStore creates a new in-memory attempt store
func NewMemoryAttemptStore(opts ...Option) *MemoryAttemptStore {
	return &MemoryAttemptStore{
		clocked: newClocked(opts),
		entries: make(map[string]attemptEntry),
	}
}

// ReserveAttempt mirrors the Redis script: locked records are left alone, elapsed
// lockouts restart from zero, and reaching maxAttempts sets the lockout window.
func (s *MemoryAttemptStore) ReserveAttempt(ctx context.Context, key string, now time.Time, maxAttempts int, lockout time.Duration) (core.AttemptRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.load(key)
	record := entry.record

	if record.LockedAt(now) {
		return record, false, nil
	}
	if !record.LockedUntil.IsZero() {
		record = core.AttemptRecord{}
	}

	record.Failures++
	expiresAt := now.Add(lockout)
	if record.Failures >= maxAttempts {
		record.LockedUntil = now.Add(lockout)
		expiresAt = record.LockedUntil
	}

	s.entries[key] = attemptEntry{record: record, expiresAt: expiresAt}
	return record, true, nil
}

// Get returns the record for key, or the zero record
func (s *MemoryAttemptStore) Get(ctx context.Context, key string) (core.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(key).record, nil
}

// Reset clears the record for key
func (s *MemoryAttemptStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// load returns the live entry for key, dropping it if its TTL has passed. Caller holds mu.
func (s *MemoryAttemptStore) load(key string) attemptEntry {
	entry, ok := s.entries[key]
	if !ok {
		return attemptEntry{}
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return attemptEntry{}
	}
	return entry
}
