package service

import (
	"context"
	"fmt"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

const (
	MinPinLength = 4
	MaxPinLength = 10
)

// LockoutScope selects what the attempt counter is keyed on
type LockoutScope string

const (
	ScopeIdentity LockoutScope = "identity"
	ScopeSource   LockoutScope = "source"
)

// PinPolicy holds the verifier's explicit policy decisions
type PinPolicy struct {
	// CountMalformed makes a badly formatted PIN cost an attempt like a wrong one.
	CountMalformed bool
	Scope          LockoutScope
}

// PinVerifier checks a submitted PIN against the rate limiter, the lockout state
// and the stored secret, in that order.
//
// Every comparison is paid for up front: an attempt is reserved in the store before
// the matcher runs, and a match resets the key. Concurrent guesses therefore get at
// most maxAttempts comparisons per lockout window.
type PinVerifier struct {
	tracker *AttemptTracker
	matcher ports.SecretMatcher
	limiter ports.RateLimiter
	policy  PinPolicy
}

// NewPinVerifier creates a verifier. limiter may be nil to disable the per-source throttle.
func NewPinVerifier(tracker *AttemptTracker, matcher ports.SecretMatcher, limiter ports.RateLimiter, policy PinPolicy) *PinVerifier {
	if policy.Scope == "" {
		policy.Scope = ScopeIdentity
	}

	return &PinVerifier{
		tracker: tracker,
		matcher: matcher,
		limiter: limiter,
		policy:  policy,
	}
}

// CountsMalformed reports whether malformed input spends an attempt
func (v *PinVerifier) CountsMalformed() bool {
	return v.policy.CountMalformed
}

// ValidatePin checks length and charset: 4 to 10 ASCII digits
func ValidatePin(pin string) error {
	if len(pin) < MinPinLength || len(pin) > MaxPinLength {
		return core.ErrMalformedPin
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return core.ErrMalformedPin
		}
	}
	return nil
}

// Verify runs one PIN attempt. A non-nil error means a backing store failed and
// the attempt must be treated as denied.
func (v *PinVerifier) Verify(ctx context.Context, attempt core.PinAttempt) (core.Outcome, error) {
	if v.limiter != nil {
		allowed, retryAfter, err := v.limiter.Allow(ctx, "pin:"+sourceOf(attempt))
		if err != nil {
			return core.Outcome{}, err
		}
		if !allowed {
			return core.Outcome{Kind: core.OutcomeRateLimited, RemainingSeconds: ceilSeconds(retryAfter)}, nil
		}
	}

	key := v.trackerKey(attempt)

	if err := ValidatePin(attempt.Pin); err != nil {
		if v.policy.CountMalformed {
			return v.reserve(ctx, key, core.OutcomeMalformed)
		}
		status, err := v.tracker.Status(ctx, key)
		if err != nil {
			return core.Outcome{}, err
		}
		if status.Locked {
			return lockedOut(status), nil
		}
		return core.Outcome{Kind: core.OutcomeMalformed, RemainingAttempts: status.RemainingAttempts}, nil
	}

	// A locked key is answered before the secret is looked at.
	record, reserved, err := v.tracker.Reserve(ctx, key)
	if err != nil {
		return core.Outcome{}, err
	}
	status := v.tracker.StatusOf(record)
	if !reserved {
		return lockedOut(status), nil
	}

	ok, err := v.matcher.Match(ctx, attempt.Identity, attempt.Pin)
	if err != nil {
		return core.Outcome{}, fmt.Errorf("match pin: %w", err)
	}
	if !ok {
		return failed(status, core.OutcomeWrongPin), nil
	}

	if err := v.tracker.RecordSuccess(ctx, key); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Kind: core.OutcomeSuccess}, nil
}

// reserve spends an attempt without a comparison
func (v *PinVerifier) reserve(ctx context.Context, key string, kind core.OutcomeKind) (core.Outcome, error) {
	record, _, err := v.tracker.Reserve(ctx, key)
	if err != nil {
		return core.Outcome{}, err
	}
	return failed(v.tracker.StatusOf(record), kind), nil
}

// failed reports a spent attempt. The attempt that reaches the threshold is
// reported as LockedOut, the same as any later attempt in the window.
func failed(status core.AttemptStatus, kind core.OutcomeKind) core.Outcome {
	if status.Locked {
		return lockedOut(status)
	}
	return core.Outcome{Kind: kind, RemainingAttempts: status.RemainingAttempts}
}

func lockedOut(status core.AttemptStatus) core.Outcome {
	return core.Outcome{Kind: core.OutcomeLockedOut, RemainingSeconds: status.RemainingLockoutSeconds}
}

func (v *PinVerifier) trackerKey(attempt core.PinAttempt) string {
	if v.policy.Scope == ScopeSource {
		return "source:" + sourceOf(attempt)
	}
	return "identity:" + attempt.Identity
}

func sourceOf(attempt core.PinAttempt) string {
	if attempt.Source == "" {
		return "unknown"
	}
	return attempt.Source
}
