package ports

import (
	"context"
	"time"

	"github.com/layer-3/doctorauth/core"
)

// RevocationStore records which refresh tokens are live.
// Presence of an entry means live; absence means revoked, expired or already rotated.
type RevocationStore interface {
	Put(ctx context.Context, identity, token string, ttl time.Duration) error
	// GetAndDelete atomically removes the entry and reports whether it existed.
	// Of several concurrent callers for the same entry, at most one observes true.
	GetAndDelete(ctx context.Context, identity, token string) (bool, error)
	Delete(ctx context.Context, identity, token string) error
}

// AttemptStore persists failed PIN attempts. Every method is a single atomic
// transition on the backing store.
type AttemptStore interface {
	// ReserveAttempt spends one attempt at now under the given policy and returns the
	// resulting record. A record locked at now is returned unchanged with reserved
	// false. Otherwise the count is incremented, the key is locked when it reaches
	// maxAttempts, and reserved is true.
	ReserveAttempt(ctx context.Context, key string, now time.Time, maxAttempts int, lockout time.Duration) (record core.AttemptRecord, reserved bool, err error)
	Get(ctx context.Context, key string) (core.AttemptRecord, error)
	Reset(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report backend health
type Pinger interface {
	Ping(ctx context.Context) error
}
