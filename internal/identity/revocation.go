package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const revokedKeyPrefix = "bloodlink:revoked:"

// RedisRevocations stores digests of revoked tokens until they would have expired.
type RedisRevocations struct {
	client redis.Cmdable
}

// NewRedisRevocations constructs a revocation list on client.
func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{client: client}
}

// Revoke blocks token for ttl. A non-positive ttl keeps the entry forever.
func (r *RedisRevocations) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, revokedKey(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("identity: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether token was revoked. Callers must treat an error as revoked.
func (r *RedisRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("identity: check revocation: %w", err)
	}
	return n > 0, nil
}

func revokedKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
