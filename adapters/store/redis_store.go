package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the RevocationStore interface
type RedisStore struct {
	client redis.UniversalClient
}

var _ ports.RevocationStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis revocation store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Put marks a refresh token as live in Redis with the token's own lifetime
func (s *RedisStore) Put(ctx context.Context, identity, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("refresh token ttl must be positive, got %s", ttl)
	}

	if err := s.client.Set(ctx, revocationKey(identity, token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: register refresh token: %v", core.ErrStoreUnavailable, err)
	}

	return nil
}

// GetAndDelete redeems a token with GETDEL so concurrent redemptions have a single winner
func (s *RedisStore) GetAndDelete(ctx context.Context, identity, token string) (bool, error) {
	err := s.client.GetDel(ctx, revocationKey(identity, token)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: redeem refresh token: %v", core.ErrStoreUnavailable, err)
	}

	return true, nil
}

// Delete revokes a refresh token
func (s *RedisStore) Delete(ctx context.Context, identity, token string) error {
	if err := s.client.Del(ctx, revocationKey(identity, token)).Err(); err != nil {
		return fmt.Errorf("%w: revoke refresh token: %v", core.ErrStoreUnavailable, err)
	}

	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}
