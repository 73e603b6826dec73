package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// TokenIssuer mints access and refresh tokens. Every refresh token it mints is
// registered in the revocation store with the token's own lifetime.
type TokenIssuer struct {
	tokenizer  ports.Tokenizer
	store      ports.RevocationStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates an issuer. The access TTL must be shorter than the refresh TTL.
func NewTokenIssuer(tokenizer ports.Tokenizer, store ports.RevocationStore, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", core.ErrInvalidConfig)
	}
	if accessTTL >= refreshTTL {
		return nil, fmt.Errorf("%w: access ttl %s must be shorter than refresh ttl %s", core.ErrInvalidConfig, accessTTL, refreshTTL)
	}

	return &TokenIssuer{
		tokenizer:  tokenizer,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock overrides the issuer clock
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// AccessTTL returns the access token lifetime
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// RefreshTTL returns the refresh token lifetime
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccessToken mints a stateless access token for identity
func (i *TokenIssuer) IssueAccessToken(identity, refreshID string) (string, time.Time, error) {
	now := i.now()
	session := &core.Session{
		ID:           uuid.New().String(),
		Identity:     identity,
		Type:         core.TokenTypeAccess,
		IssuedAt:     now,
		AccessExpiry: now.Add(i.accessTTL),
		RefreshID:    refreshID,
	}

	token, err := i.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create access token: %w", err)
	}

	return token, session.AccessExpiry, nil
}

// IssueRefreshToken mints a refresh token and registers it as live
func (i *TokenIssuer) IssueRefreshToken(ctx context.Context, identity string) (string, *core.Session, error) {
	now := i.now()
	refreshID := uuid.New().String()
	session := &core.Session{
		ID:            refreshID,
		Identity:      identity,
		Type:          core.TokenTypeRefresh,
		IssuedAt:      now,
		RefreshExpiry: now.Add(i.refreshTTL),
		RefreshID:     refreshID,
	}

	token, err := i.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	if err := i.store.Put(ctx, identity, token, i.refreshTTL); err != nil {
		return "", nil, fmt.Errorf("failed to register refresh token: %w", err)
	}

	return token, session, nil
}

// IssuePair mints a registered refresh token and an access token paired with it
func (i *TokenIssuer) IssuePair(ctx context.Context, identity string) (core.TokenPair, error) {
	if identity == "" {
		return core.TokenPair{}, fmt.Errorf("cannot issue tokens without an identity")
	}

	refreshToken, refreshSession, err := i.IssueRefreshToken(ctx, identity)
	if err != nil {
		return core.TokenPair{}, err
	}

	accessToken, accessExpiry, err := i.IssueAccessToken(identity, refreshSession.ID)
	if err != nil {
		return core.TokenPair{}, err
	}

	return core.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshSession.RefreshExpiry,
	}, nil
}
