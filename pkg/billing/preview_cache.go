package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PreviewCache keeps bulk previews between the preview and commit phases so
// a reviewed preview can be committed by ID.
type PreviewCache interface {
	Put(ctx context.Context, p *BulkPreview) error
	// Get returns ErrPreviewNotFound for unknown or expired IDs
	Get(ctx context.Context, id string) (*BulkPreview, error)
	Delete(ctx context.Context, id string) error
}

// MemoryPreviewCache is a process-local PreviewCache
type MemoryPreviewCache struct {
	lru *expirable.LRU[string, BulkPreview]
}

// NewMemoryPreviewCache keeps up to size previews for ttl
func NewMemoryPreviewCache(size int, ttl time.Duration) *MemoryPreviewCache {
	return &MemoryPreviewCache{lru: expirable.NewLRU[string, BulkPreview](size, nil, ttl)}
}

func (c *MemoryPreviewCache) Put(ctx context.Context, p *BulkPreview) error {
	c.lru.Add(p.ID, *p)
	return nil
}

func (c *MemoryPreviewCache) Get(ctx context.Context, id string) (*BulkPreview, error) {
	p, ok := c.lru.Get(id)
	if !ok {
		return nil, ErrPreviewNotFound
	}
	return &p, nil
}

func (c *MemoryPreviewCache) Delete(ctx context.Context, id string) error {
	c.lru.Remove(id)
	return nil
}

// RedisPreviewCache shares previews across API replicas
type RedisPreviewCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisPreviewCache stores previews under "<prefix>preview:<id>" for ttl
func NewRedisPreviewCache(client *redis.Client, prefix string, ttl time.Duration) *RedisPreviewCache {
	return &RedisPreviewCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisPreviewCache) key(id string) string {
	return fmt.Sprintf("%spreview:%s", c.prefix, id)
}

func (c *RedisPreviewCache) Put(ctx context.Context, p *BulkPreview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preview: %w", err)
	}
	if err := c.client.Set(ctx, c.key(p.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisPreviewCache) Get(ctx context.Context, id string) (*BulkPreview, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPreviewNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p BulkPreview
	if err := json.Unmarshal(data, &p); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, c.key(id))
		return nil, fmt.Errorf("failed to unmarshal preview: %w", err)
	}
	return &p, nil
}

func (c *RedisPreviewCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
