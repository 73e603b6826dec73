package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenRevoked     = errors.New("token has been revoked or already used")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMalformedPin     = errors.New("pin must be 4 to 10 digits")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
