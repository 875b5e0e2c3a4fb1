package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"digistore-be/internal/download"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type linkCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewLinkCache caches download links by product in redis.
func NewLinkCache(rdb redis.Cmdable) download.LinkCache {
	return &linkCache{rdb: rdb, ttl: TTLDownloadLink}
}

func linkKey(productID uuid.UUID) string {
	return fmt.Sprintf(KeyDownloadLinkByProduct, productID)
}

func (c *linkCache) Get(ctx context.Context, productID uuid.UUID) (*download.Link, error) {
	raw, err := c.rdb.Get(ctx, linkKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached link: %w", err)
	}

	var link download.Link
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	return &link, nil
}

func (c *linkCache) Set(ctx context.Context, link *download.Link) error {
	raw, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	if err := c.rdb.Set(ctx, linkKey(link.ProductID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached link: %w", err)
	}
	return nil
}
