package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"pitwall/logger"

	"github.com/go-redis/redis/v8"
)

// DocumentCache keeps raw upstream documents (schedule index, session info,
// driver list) so repeated metadata lookups skip the network.
// Misses and cache errors are indistinguishable to callers.
type DocumentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores data for ttl; ttl <= 0 uses the cache default.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
}

// RedisDocumentCache 基于 Redis 的文档缓存
type RedisDocumentCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDocumentCache(client *redis.Client, ttl time.Duration) *RedisDocumentCache {
	return &RedisDocumentCache{client: client, ttl: ttl, prefix: "pitwall:doc:"}
}

func (c *RedisDocumentCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Document cache read failed", logger.String("key", key), logger.ErrorField(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisDocumentCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		logger.Warn("Document cache write failed", logger.String("key", key), logger.ErrorField(err))
	}
}

// MemoryDocumentCache is an in-process cache, used when Redis is disabled.
// Expired entries are dropped on read.
type MemoryDocumentCache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	docs map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time // zero: never
}

// NewMemoryDocumentCache 创建内存文档缓存，ttl <= 0 表示不过期
func NewMemoryDocumentCache(ttl time.Duration) *MemoryDocumentCache {
	return &MemoryDocumentCache{ttl: ttl, docs: make(map[string]memoryEntry)}
}

func (c *MemoryDocumentCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.docs[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !time.Now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.docs[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.docs, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

func (c *MemoryDocumentCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.docs[key] = e
	c.mu.Unlock()
}

// Len 返回缓存的文档数量，含尚未清理的过期项
func (c *MemoryDocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
