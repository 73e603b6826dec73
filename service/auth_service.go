package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/rs/zerolog"
)

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.RevocationStore
	eventPub  ports.EventPublisher

	verifier *PinVerifier
	issuer   *TokenIssuer
	rotator  *SessionRotator

	logger zerolog.Logger
	now    func() time.Time
}

// NewAuthService creates a new authentication service. eventPub may be nil.
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.RevocationStore,
	verifier *PinVerifier,
	issuer *TokenIssuer,
	eventPub ports.EventPublisher,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		tokenizer: tokenizer,
		store:     store,
		eventPub:  eventPub,
		verifier:  verifier,
		issuer:    issuer,
		rotator:   NewSessionRotator(tokenizer, store, issuer),
		logger:    logger.With().Str("component", "auth").Logger(),
		now:       time.Now,
	}
}

// AccessTTL returns the lifetime of issued access tokens
func (s *AuthService) AccessTTL() time.Duration {
	return s.issuer.AccessTTL()
}

// RefreshTTL returns the lifetime of issued refresh tokens
func (s *AuthService) RefreshTTL() time.Duration {
	return s.issuer.RefreshTTL()
}

// VerifyPin checks a PIN and, on success, issues a registered token pair
func (s *AuthService) VerifyPin(ctx context.Context, attempt core.PinAttempt) (core.Outcome, error) {
	log := s.logger.With().Str("identity", attempt.Identity).Str("source", attempt.Source).Logger()

	outcome, err := s.verifier.Verify(ctx, attempt)
	if err != nil {
		log.Error().Err(err).Msg("pin verification failed closed")
		return core.Outcome{}, err
	}

	switch outcome.Kind {
	case core.OutcomeSuccess:
		tokens, err := s.issuer.IssuePair(ctx, attempt.Identity)
		if err != nil {
			log.Error().Err(err).Msg("failed to issue tokens after pin verification")
			return core.Outcome{}, err
		}
		outcome.Tokens = &tokens
		log.Info().Msg("pin verified")
		s.publish(ctx, core.EventPinVerified, attempt.Identity, "", attempt.Source)

	case core.OutcomeWrongPin, core.OutcomeMalformed:
		log.Info().
			Str("outcome", outcome.Kind.String()).
			Int("remaining_attempts", outcome.RemainingAttempts).
			Msg("pin rejected")
		eventType := core.EventPinFailed
		if outcome.Kind == core.OutcomeMalformed && !s.verifier.CountsMalformed() {
			eventType = core.EventPinRejected
		}
		s.publish(ctx, eventType, attempt.Identity, "", attempt.Source)

	case core.OutcomeLockedOut:
		log.Warn().Int("remaining_seconds", outcome.RemainingSeconds).Msg("pin attempt while locked out")
		s.publish(ctx, core.EventPinLocked, attempt.Identity, "", attempt.Source)

	case core.OutcomeRateLimited:
		log.Warn().Int("retry_after", outcome.RemainingSeconds).Msg("pin attempt rate limited")
	}

	return outcome, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	session, err := s.rotator.Verify(refreshToken)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, core.ErrTokenExpired) {
			reason = "expired"
		}
		s.logger.Info().Str("reason", reason).Err(err).Msg("refresh token rejected")
		return core.TokenPair{}, err
	}

	log := s.logger.With().Str("identity", session.Identity).Str("token_id", session.ID).Logger()

	pair, err := s.rotator.Rotate(ctx, session, refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrTokenRevoked) {
			log.Warn().Msg("refresh token revoked or replayed")
			s.publish(ctx, core.EventReplayRejected, session.Identity, session.ID, "")
			return core.TokenPair{}, err
		}
		log.Error().Err(err).Msg("refresh rotation failed")
		return core.TokenPair{}, err
	}

	log.Debug().Msg("refresh token rotated")
	s.publish(ctx, core.EventSessionRotated, session.Identity, session.ID, "")

	return pair, nil
}

// Logout revokes a refresh token. Revoking an expired or already revoked token succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.rotator.Verify(refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			// The store entry expires together with the token.
			return nil
		}
		return err
	}

	if err := s.store.Delete(ctx, session.Identity, refreshToken); err != nil {
		s.logger.Error().Err(err).Str("identity", session.Identity).Msg("failed to revoke refresh token")
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.publish(ctx, core.EventSessionLoggedOut, session.Identity, session.ID, "")
	return nil
}

// ValidateAccessToken verifies an access token without consulting any store
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// publish emits an auth event. The request has already been decided, so a failed
// publish is logged and dropped.
func (s *AuthService) publish(ctx context.Context, eventType core.EventType, identity, tokenID, source string) {
	if s.eventPub == nil {
		return
	}

	event := core.Event{
		Type:       eventType,
		Identity:   identity,
		TokenID:    tokenID,
		Source:     source,
		OccurredAt: s.now().UTC(),
	}
	if err := s.eventPub.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish auth event")
	}
}
