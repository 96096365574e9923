// Package antifraud provides submission-abuse controls (redis rate limit and
// a noop mode).
package antifraud

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

var ErrRateLimitExceeded = fmt.Errorf("ballot submission limit reached")

// RedisRateLimiter caps submissions per IP/UA in fixed windows using Redis.
// It complements, not replaces, the one-ballot-per-voter constraint: the
// uniqueness index stops duplicates, this stops floods of fresh identities.
type RedisRateLimiter struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: prefix,
	}
}

func (r *RedisRateLimiter) Check(ctx context.Context, ballot domain.Ballot) error {
	if r.client == nil || r.limit <= 0 || r.window <= 0 {
		// Invalid configuration falls back to permissive mode.
		return nil
	}

	key := r.buildKey(ballot)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("antifraud: increment failed: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return fmt.Errorf("antifraud: expire failed: %w", err)
		}
	}

	if int(count) > r.limit {
		return ErrRateLimitExceeded
	}

	return nil
}

func (r *RedisRateLimiter) buildKey(ballot domain.Ballot) string {
	// SHA-1 keeps raw IP/UA out of Redis keys.
	base := fmt.Sprintf("%s|%s|%s", ballot.PollID, ballot.OriginIP, ballot.UserAgent)
	hash := sha1.Sum([]byte(base))
	return fmt.Sprintf("%s:%s", r.keyPrefix, hex.EncodeToString(hash[:]))
}

var _ domain.Antifraud = (*RedisRateLimiter)(nil)
