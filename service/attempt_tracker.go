package service

import (
	"context"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 900 * time.Second
)

// AttemptTracker applies the lockout policy to an AttemptStore.
//
// States: OPEN(n) -failure-> OPEN(n+1), and the failure that reaches MaxAttempts
// moves to LOCKED until LockedUntil. Failures while LOCKED change nothing. Once
// LockedUntil passes the key reads as OPEN(0); success resets from any state.
type AttemptTracker struct {
	store       ports.AttemptStore
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// NewAttemptTracker creates a tracker; non-positive values fall back to the defaults
func NewAttemptTracker(store ports.AttemptStore, maxAttempts int, lockout time.Duration) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}

	return &AttemptTracker{
		store:       store,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         time.Now,
	}
}

// WithClock overrides the tracker clock
func (t *AttemptTracker) WithClock(now func() time.Time) *AttemptTracker {
	t.now = now
	return t
}

// MaxAttempts returns the configured threshold
func (t *AttemptTracker) MaxAttempts() int {
	return t.maxAttempts
}

// Reserve spends one attempt for key before the secret is compared. reserved is
// false when key was already locked; the record is then unchanged.
func (t *AttemptTracker) Reserve(ctx context.Context, key string) (core.AttemptRecord, bool, error) {
	return t.store.ReserveAttempt(ctx, key, t.now(), t.maxAttempts, t.lockout)
}

// RecordFailure counts one failed attempt for key
func (t *AttemptTracker) RecordFailure(ctx context.Context, key string) (core.AttemptRecord, error) {
	record, _, err := t.Reserve(ctx, key)
	return record, err
}

// RecordSuccess resets key unconditionally
func (t *AttemptTracker) RecordSuccess(ctx context.Context, key string) error {
	return t.store.Reset(ctx, key)
}

// Status reads the current state of key
func (t *AttemptTracker) Status(ctx context.Context, key string) (core.AttemptStatus, error) {
	record, err := t.store.Get(ctx, key)
	if err != nil {
		return core.AttemptStatus{}, err
	}
	return t.StatusOf(record), nil
}

// StatusOf evaluates a record at the tracker's current time. An elapsed lockout
// reads as a fresh key.
func (t *AttemptTracker) StatusOf(record core.AttemptRecord) core.AttemptStatus {
	now := t.now()

	if record.LockedAt(now) {
		return core.AttemptStatus{
			Locked:                  true,
			RemainingAttempts:       0,
			RemainingLockoutSeconds: ceilSeconds(record.LockedUntil.Sub(now)),
		}
	}
	if !record.LockedUntil.IsZero() {
		return core.AttemptStatus{RemainingAttempts: t.maxAttempts}
	}

	remaining := t.maxAttempts - record.Failures
	if remaining < 0 {
		remaining = 0
	}
	return core.AttemptStatus{RemainingAttempts: remaining}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
