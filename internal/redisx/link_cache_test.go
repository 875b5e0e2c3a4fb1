package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"digistore-be/internal/download"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands the link cache issues.
type fakeRedis struct {
	redis.Cmdable
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestLinkCache(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()
	link := &download.Link{
		ID:        uuid.New(),
		ProductID: productID,
		URL:       "https://cdn.example.com/downloads/" + productID.String() + "?token=abc",
		ExpiresAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	t.Run("Miss", func(t *testing.T) {
		cache := NewLinkCache(newFakeRedis())

		got, err := cache.Get(ctx, productID)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Set then Get", func(t *testing.T) {
		rdb := newFakeRedis()
		cache := NewLinkCache(rdb)

		require.NoError(t, cache.Set(ctx, link))
		key := "download_link:product:" + productID.String()
		assert.Equal(t, TTLDownloadLink, rdb.ttl[key])

		got, err := cache.Get(ctx, productID)
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, link.URL, got.URL)
		assert.True(t, link.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("Corrupt entry", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.data[linkKey(productID)] = "{not json"

		_, err := NewLinkCache(rdb).Get(ctx, productID)
		assert.Error(t, err)
	})

	t.Run("Backend errors", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.getErr = errors.New("connection refused")
		rdb.setErr = errors.New("connection refused")
		cache := NewLinkCache(rdb)

		_, err := cache.Get(ctx, productID)
		assert.Error(t, err)
		assert.Error(t, cache.Set(ctx, link))
	})
}
