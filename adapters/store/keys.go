package store

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	revocationPrefix = "doctorauth:refresh:"
	attemptPrefix    = "doctorauth:attempts:"
)

// revocationKey scopes a refresh token by identity. The raw token is never stored.
func revocationKey(identity, token string) string {
	sum := sha256.Sum256([]byte(token))
	return revocationPrefix + identity + ":" + hex.EncodeToString(sum[:])
}

func attemptKey(key string) string {
	return attemptPrefix + key
}
