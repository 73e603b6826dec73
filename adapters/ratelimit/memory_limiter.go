package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/doctorauth/ports"
)

// MemoryLimiter is a sliding-window limiter local to the process
type MemoryLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByKey map[string][]time.Time
	maxMemory int
	now       func() time.Time
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter allowing maxHits per key per window
func NewMemoryLimiter(maxHits int, window time.Duration) *MemoryLimiter {
	maxHits, window = withDefaults(maxHits, window)
	return &MemoryLimiter{
		maxHits:   maxHits,
		window:    window,
		hitsByKey: make(map[string][]time.Time),
		maxMemory: 5000,
		now:       time.Now,
	}
}

// WithClock overrides the limiter clock
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow records a hit for key
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitsByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= l.maxHits {
		retryAfter := filtered[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hitsByKey[key] = filtered
		return false, retryAfter, nil
	}

	l.hitsByKey[key] = append(filtered, now)

	if len(l.hitsByKey) > l.maxMemory {
		for k, value := range l.hitsByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hitsByKey, k)
			}
		}
	}

	return true, 0, nil
}
