package core

import "time"

// TokenType discriminates access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Session represents the decoded contents of an access or refresh token
type Session struct {
	ID            string    // Unique token identifier (jti)
	Identity      string    // Practitioner the token was issued to
	Type          TokenType // Access or refresh
	IssuedAt      time.Time // When the token was minted
	AccessExpiry  time.Time // Set on access tokens
	RefreshExpiry time.Time // Set on refresh tokens
	RefreshID     string    // jti of the refresh token an access token was paired with
}

// TokenPair is what a successful PIN check or rotation hands back to the client
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AttemptRecord is the persisted failure state for one tracker key
type AttemptRecord struct {
	Failures    int
	LockedUntil time.Time // zero when not locked
}

// LockedAt reports whether the record still holds an active lockout at now
func (r AttemptRecord) LockedAt(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// AttemptStatus is the read view of an AttemptRecord under the current policy
type AttemptStatus struct {
	Locked                  bool
	RemainingAttempts       int
	RemainingLockoutSeconds int
}

// PinAttempt is a single PIN submission
type PinAttempt struct {
	Identity string
	Pin      string
	Source   string // client address, used by the rate limiter
}

// OutcomeKind enumerates the results of a PIN verification. The zero value is not a valid outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeWrongPin
	OutcomeLockedOut
	OutcomeRateLimited
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeWrongPin:
		return "wrong_pin"
	case OutcomeLockedOut:
		return "locked_out"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is the structured result of a PIN verification
type Outcome struct {
	Kind              OutcomeKind
	RemainingAttempts int        // WrongPin, Malformed
	RemainingSeconds  int        // LockedOut (lockout left), RateLimited (retry after)
	Tokens            *TokenPair // Success, once tokens have been issued
}
