package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/doctorauth/adapters/pin"
	"github.com/layer-3/doctorauth/adapters/store"
	"github.com/layer-3/doctorauth/adapters/tokenizer"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIdentity = "doc-1"
	testPin      = "482913"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock    *testClock
	tokens   *store.MemoryStore
	attempts *store.MemoryAttemptStore
	tracker  *AttemptTracker
	verifier *PinVerifier
	issuer   *TokenIssuer
	rotator  *SessionRotator
	events   *recordingPublisher
	auth     *AuthService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy  PinPolicy
	limiter ports.RateLimiter
}

func withPolicy(policy PinPolicy) fixtureOption {
	return func(c *fixtureConfig) { c.policy = policy }
}

func withLimiter(l ports.RateLimiter) fixtureOption {
	return func(c *fixtureConfig) { c.limiter = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{policy: PinPolicy{CountMalformed: true, Scope: ScopeIdentity}}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := newTestClock()
	tokens := store.NewMemoryStore(store.WithClock(clock.Now))
	attempts := store.NewMemoryAttemptStore(store.WithClock(clock.Now))

	tk, err := tokenizer.NewJWTTokenizer([]byte("0123456789abcdef0123456789abcdef"), "doctorauth", "doctor-portal", tokenizer.WithClock(clock.Now))
	require.NoError(t, err)

	hash, err := pin.HashPin(testPin, bcrypt.MinCost)
	require.NoError(t, err)
	matcher, err := pin.NewBcryptMatcher(map[string]string{testIdentity: hash})
	require.NoError(t, err)

	tracker := NewAttemptTracker(attempts, DefaultMaxAttempts, DefaultLockoutDuration).WithClock(clock.Now)
	verifier := NewPinVerifier(tracker, matcher, cfg.limiter, cfg.policy)

	issuer, err := NewTokenIssuer(tk, tokens, DefaultAccessTTL, DefaultRefreshTTL)
	require.NoError(t, err)
	issuer.WithClock(clock.Now)

	events := &recordingPublisher{}
	auth := NewAuthService(tk, tokens, verifier, issuer, events, zerolog.Nop())
	auth.now = clock.Now

	return &fixture{
		clock:    clock,
		tokens:   tokens,
		attempts: attempts,
		tracker:  tracker,
		verifier: verifier,
		issuer:   issuer,
		rotator:  NewSessionRotator(tk, tokens, issuer),
		events:   events,
		auth:     auth,
	}
}

func (f *fixture) attempt(pin string) core.PinAttempt {
	return core.PinAttempt{Identity: testIdentity, Pin: pin, Source: "10.0.0.1"}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Types() []core.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]core.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

var errStoreDown = errors.New("connection refused")

// failingAttemptStore simulates an unreachable backend.
type failingAttemptStore struct{}

func (failingAttemptStore) ReserveAttempt(context.Context, string, time.Time, int, time.Duration) (core.AttemptRecord, bool, error) {
	return core.AttemptRecord{}, false, errors.Join(core.ErrStoreUnavailable, errStoreDown)
}

func (failingAttemptStore) Get(context.Context, string) (core.AttemptRecord, error) {
	return core.AttemptRecord{}, errors.Join(core.ErrStoreUnavailable, errStoreDown)
}

func (failingAttemptStore) Reset(context.Context, string) error {
	return errors.Join(core.ErrStoreUnavailable, errStoreDown)
}

// failingRevocationStore accepts writes and fails every redemption.
type failingRevocationStore struct {
	*store.MemoryStore
}

func (failingRevocationStore) GetAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.Join(core.ErrStoreUnavailable, errStoreDown)
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (l *stubLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.retryAfter, l.err
}
