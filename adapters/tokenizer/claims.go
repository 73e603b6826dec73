package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/doctorauth/core"
)

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	Type      core.TokenType `json:"type"`
	RefreshID string         `json:"rid,omitempty"` // ID of the refresh token issued alongside
}

// RefreshClaims carry the refresh discriminator so an access token can never be redeemed
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type core.TokenType `json:"type"`
}
