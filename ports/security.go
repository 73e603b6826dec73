package ports

import (
	"context"
	"time"
)

// RateLimiter is the coarse per-source throttle that sits in front of the lockout logic
type RateLimiter interface {
	// Allow records a hit for key and reports whether it fits the budget.
	// When it does not, retryAfter is how long until the window frees up.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// SecretMatcher compares a submitted PIN with the stored secret for an identity.
// Implementations must compare in constant time and take the same time for unknown identities.
type SecretMatcher interface {
	Match(ctx context.Context, identity, pin string) (bool, error)
}
