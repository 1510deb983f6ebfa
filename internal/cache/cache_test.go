package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPost struct {
	ID    string `json:"id"`
	Views int64  `json:"views"`
}

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetClient(rdb)
	t.Cleanup(func() {
		SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedPost) func() error {
		return func() error {
			calls++
			*dest = cachedPost{ID: "p1", Views: 7}
			return nil
		}
	}

	var first cachedPost
	require.NoError(t, Aside(ctx, PostKey("p1"), &first, PostTTL, fetch(&first)))
	var second cachedPost
	require.NoError(t, Aside(ctx, PostKey("p1"), &second, PostTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("post:p1"))
	assert.Equal(t, PostTTL, mr.TTL("post:p1"))

	InvalidatePost(ctx, "p1")
	assert.False(t, mr.Exists("post:p1"))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := useMiniredis(t)

	var dest cachedPost
	err := Aside(context.Background(), PostKey("missing"), &dest, PostTTL, func() error {
		return errors.New("not found")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("post:missing"))
}

func TestAside_WithoutRedisCallsFetch(t *testing.T) {
	SetClient(nil)

	var dest cachedPost
	called := false
	err := Aside(context.Background(), PostKey("p1"), &dest, time.Second, func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestSearchKey_Normalizes(t *testing.T) {
	assert.Equal(t, SearchKey("Hello"), SearchKey("  hello "))
	assert.NotEqual(t, SearchKey("hello"), SearchKey("world"))
	assert.NotContains(t, SearchKey("a b:c"), " ")
}

func TestAsideGuarded_FillRacingAWriteIsNotServed(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	key, genKey := PostKey("p1"), PostGenKey("p1")

	stored := cachedPost{ID: "p1", Views: 1}
	calls := 0

	// The writer commits and bumps while the reader's fetch is still in flight.
	var first cachedPost
	require.NoError(t, AsideGuarded(ctx, key, genKey, &first, PostTTL, func() error {
		calls++
		first = stored
		stored.Views = 2
		InvalidatePost(ctx, "p1")
		return nil
	}))
	assert.Equal(t, int64(1), first.Views)
	assert.True(t, mr.Exists(key), "the racing fill is written")

	var second cachedPost
	require.NoError(t, AsideGuarded(ctx, key, genKey, &second, PostTTL, func() error {
		calls++
		second = stored
		return nil
	}))
	assert.Equal(t, 2, calls, "the stale entry carries an old stamp and is refetched")
	assert.Equal(t, int64(2), second.Views)

	var third cachedPost
	require.NoError(t, AsideGuarded(ctx, key, genKey, &third, PostTTL, func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 2, calls)
	assert.Equal(t, second, third)
}

func TestBump_SetsGenerationAndDropsKeys(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("post:p1", "x"))

	InvalidatePost(ctx, "p1")
	InvalidatePost(ctx, "p1")

	assert.False(t, mr.Exists("post:p1"))
	gen, err := mr.Get("post:p1:gen")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
	assert.Equal(t, generationTTL, mr.TTL("post:p1:gen"))
}

func TestAsideGuarded_WithoutRedisCallsFetch(t *testing.T) {
	SetClient(nil)

	called := false
	var dest cachedPost
	err := AsideGuarded(context.Background(), PostKey("p1"), PostGenKey("p1"), &dest, PostTTL, func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestInitRedis(t *testing.T) {
	t.Cleanup(func() {
		if client != nil {
			_ = client.Close()
		}
		SetClient(nil)
	})
	mr := miniredis.RunT(t)

	InitRedis("redis://" + mr.Addr())
	require.NotNil(t, GetClient())
	require.NoError(t, GetClient().Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
	_ = GetClient().Close()

	InitRedis("  ")
	assert.Nil(t, GetClient())

	InitRedis("redis://%zz")
	assert.Nil(t, GetClient())

	mr.Close()
	InitRedis(mr.Addr())
	assert.Nil(t, GetClient())
}
