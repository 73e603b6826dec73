package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock overrides the clock used to validate exp/iat
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) {
		j.now = now
	}
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	signKey  []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer bound to one issuer and audience
func NewJWTTokenizer(signKey []byte, issuer, audience string, opts ...Option) (ports.Tokenizer, error) {
	if len(signKey) == 0 {
		return nil, fmt.Errorf("%w: empty signing key", core.ErrInvalidConfig)
	}
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", core.ErrInvalidConfig)
	}

	j := &JWTTokenizer{
		signKey:  signKey,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	if session.Identity == "" || session.AccessExpiry.IsZero() {
		return "", fmt.Errorf("access session requires identity and expiry")
	}

	claims := AccessClaims{
		RegisteredClaims: j.registered(session, session.AccessExpiry),
		Type:             core.TokenTypeAccess,
		RefreshID:        session.RefreshID,
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	if session.Identity == "" || session.RefreshExpiry.IsZero() {
		return "", fmt.Errorf("refresh session requires identity and expiry")
	}

	claims := RefreshClaims{
		RegisteredClaims: j.registered(session, session.RefreshExpiry),
		Type:             core.TokenTypeRefresh,
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != core.TokenTypeAccess {
		return nil, fmt.Errorf("%w: expected access token, got %q", core.ErrInvalidToken, claims.Type)
	}

	return &core.Session{
		ID:           claims.ID,
		Identity:     claims.Subject,
		Type:         core.TokenTypeAccess,
		IssuedAt:     numericTime(claims.IssuedAt),
		AccessExpiry: claims.ExpiresAt.Time,
		RefreshID:    claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != core.TokenTypeRefresh {
		return nil, fmt.Errorf("%w: expected refresh token, got %q", core.ErrInvalidToken, claims.Type)
	}

	return &core.Session{
		ID:            claims.ID,
		Identity:      claims.Subject,
		Type:          core.TokenTypeRefresh,
		IssuedAt:      numericTime(claims.IssuedAt),
		RefreshExpiry: claims.ExpiresAt.Time,
		RefreshID:     claims.ID,
	}, nil
}

func (j *JWTTokenizer) registered(session *core.Session, expiresAt time.Time) jwt.RegisteredClaims {
	issuedAt := session.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = j.now()
	}

	return jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   session.Identity,
		Audience:  jwt.ClaimStrings{j.audience},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ID:        session.ID,
	}
}

// parse verifies signature, algorithm, issuer, audience and expiry.
// Every failure wraps core.ErrInvalidToken; expiry additionally wraps core.ErrTokenExpired.
func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims) error {
	if tokenStr == "" {
		return fmt.Errorf("%w: empty token", core.ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", core.ErrInvalidToken, core.ErrTokenExpired)
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	if !token.Valid {
		return core.ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return fmt.Errorf("%w: missing subject", core.ErrInvalidToken)
	}

	return nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
