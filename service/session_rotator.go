package service

import (
	"context"
	"fmt"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

// SessionRotator exchanges a live refresh token for a new token pair.
//
// The old entry is removed from the store before anything new is issued, so a
// failure after that point forces a fresh PIN login rather than leaving the old
// token redeemable.
type SessionRotator struct {
	tokenizer ports.Tokenizer
	store     ports.RevocationStore
	issuer    *TokenIssuer
}

// NewSessionRotator creates a new rotator
func NewSessionRotator(tokenizer ports.Tokenizer, store ports.RevocationStore, issuer *TokenIssuer) *SessionRotator {
	return &SessionRotator{
		tokenizer: tokenizer,
		store:     store,
		issuer:    issuer,
	}
}

// Refresh verifies, redeems and rotates a refresh token
func (r *SessionRotator) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	session, err := r.Verify(refreshToken)
	if err != nil {
		return core.TokenPair{}, err
	}
	return r.Rotate(ctx, session, refreshToken)
}

// Verify checks signature, expiry, issuer, audience and the refresh type claim.
// It does not touch the store.
func (r *SessionRotator) Verify(refreshToken string) (*core.Session, error) {
	session, err := r.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Rotate redeems a verified refresh token and issues its single successor
func (r *SessionRotator) Rotate(ctx context.Context, session *core.Session, refreshToken string) (core.TokenPair, error) {
	live, err := r.store.GetAndDelete(ctx, session.Identity, refreshToken)
	if err != nil {
		return core.TokenPair{}, err
	}
	if !live {
		return core.TokenPair{}, core.ErrTokenRevoked
	}

	pair, err := r.issuer.IssuePair(ctx, session.Identity)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to issue rotated tokens: %w", err)
	}

	return pair, nil
}
