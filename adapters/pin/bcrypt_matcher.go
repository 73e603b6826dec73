// Package pin holds the stored-secret side of PIN verification.
package pin

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used when hashing a plaintext PIN at startup
const DefaultCost = bcrypt.DefaultCost

// BcryptMatcher implements SecretMatcher over bcrypt PIN hashes keyed by identity
type BcryptMatcher struct {
	hashes map[string][]byte
	dummy  []byte
}

var _ ports.SecretMatcher = (*BcryptMatcher)(nil)

// NewBcryptMatcher validates every hash up front so a bad deployment fails at startup
func NewBcryptMatcher(hashes map[string]string) (*BcryptMatcher, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("%w: no pin hashes configured", core.ErrInvalidConfig)
	}

	m := &BcryptMatcher{hashes: make(map[string][]byte, len(hashes))}
	cost := bcrypt.DefaultCost
	for identity, hash := range hashes {
		c, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			return nil, fmt.Errorf("%w: pin hash for %q: %v", core.ErrInvalidConfig, identity, err)
		}
		cost = c
		m.hashes[identity] = []byte(hash)
	}

	// Unknown identities are compared against this so they cost the same as known ones.
	filler := make([]byte, 16)
	if _, err := rand.Read(filler); err != nil {
		return nil, fmt.Errorf("generate dummy pin: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(filler, cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy pin: %w", err)
	}
	m.dummy = dummy

	return m, nil
}

// Match compares pin with the identity's hash. bcrypt compares in constant time.
func (m *BcryptMatcher) Match(ctx context.Context, identity, pin string) (bool, error) {
	hash, ok := m.hashes[identity]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(m.dummy, []byte(pin))
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword(hash, []byte(pin))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare pin: %w", err)
}

// HashPin produces a bcrypt hash suitable for DOCTOR_PIN_HASH
func HashPin(pin string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}
