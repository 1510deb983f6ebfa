package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(s, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first and on a miss calls fetch, which must populate dest,
// then stores dest with ttl. Cache failures never fail the read.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if found, err := GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	_ = SetJSON(ctx, key, dest, ttl)
	return nil
}

type stamped struct {
	Gen   int64           `json:"gen"`
	Value json.RawMessage `json:"value"`
}

// AsideGuarded is Aside for values that writers change in place. The fill is
// stamped with the generation in genKey as read before fetch, and a cached entry
// only counts as a hit while its stamp equals the current generation. A slow
// fill that raced a write therefore never outlives the writer's Bump.
func AsideGuarded(ctx context.Context, key, genKey string, dest any, ttl time.Duration, fetch func() error) error {
	if client == nil {
		return fetch()
	}

	gen, err := client.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		gen, err = 0, nil
	}
	if err != nil {
		return fetch()
	}

	var entry stamped
	if found, err := GetJSON(ctx, key, &entry); err == nil && found && entry.Gen == gen {
		if json.Unmarshal(entry.Value, dest) == nil {
			return nil
		}
	}

	if err := fetch(); err != nil {
		return err
	}

	raw, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	_ = SetJSON(ctx, key, stamped{Gen: gen, Value: raw}, ttl)
	return nil
}

// Bump advances the generation in genKey and deletes keys in one transaction.
func Bump(ctx context.Context, genKey string, keys ...string) {
	if client == nil {
		return
	}
	pipe := client.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	_, _ = pipe.Exec(ctx)
}
