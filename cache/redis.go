// Package cache keeps rendered calendar views in Redis, one hash per user.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sporting:calendar:"

type hashClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores every view of a user under one hash so an ingest can drop
// them together. Fields are prefixed with the user's generation, which
// Invalidate bumps, so a view rendered from rows read before an ingest lands
// under a field no later Load asks for.
type Redis struct {
	client hashClient
	ttl    time.Duration
}

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(opts Options) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{client: client, ttl: opts.TTL}
}

// Key returns the hash key of a user's views.
func Key(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// GenerationKey returns the counter key bumped on every invalidation.
func GenerationKey(userID int64) string {
	return Key(userID) + ":gen"
}

func field(gen int64, view string) string {
	return fmt.Sprintf("%d:%s", gen, view)
}

// Load decodes a cached view into dst and returns the generation it was
// looked up under. A missing view is not an error. The generation is -1 when
// it could not be read.
func (r *Redis) Load(ctx context.Context, userID int64, view string, dst any) (int64, bool, error) {
	gen, err := r.client.Get(ctx, GenerationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		gen, err = 0, nil
	}
	if err != nil {
		return -1, false, fmt.Errorf("read generation of user %d: %w", userID, err)
	}

	raw, err := r.client.HGet(ctx, Key(userID), field(gen, view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("read view %s: %w", view, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return gen, false, fmt.Errorf("decode view %s: %w", view, err)
	}
	return gen, true, nil
}

// Store writes a view under the generation returned by the Load that missed.
func (r *Redis) Store(ctx context.Context, userID int64, view string, gen int64, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", view, err)
	}
	key := Key(userID)
	if err := r.client.HSet(ctx, key, field(gen, view), raw).Err(); err != nil {
		return fmt.Errorf("write view %s: %w", view, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return nil
}

// Invalidate bumps the user's generation and drops every cached view.
func (r *Redis) Invalidate(ctx context.Context, userID int64) error {
	if err := r.client.Incr(ctx, GenerationKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate user %d: %w", userID, err)
	}
	if err := r.client.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate user %d: %w", userID, err)
	}
	return nil
}

// Close closes the underlying client when it owns one.
func (r *Redis) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
