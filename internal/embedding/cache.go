package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// SharedEmbedTimeout bounds a provider call shared by concurrent callers.
// The call is detached from any single caller's context.
const SharedEmbedTimeout = 30 * time.Second

// Cache stores query embeddings by key.
type Cache interface {
	// Get returns the cached vector and whether it was present.
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// CacheKey returns "emb:{model}:{sha256(normalized text)}".
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

// CachedEmbedder wraps an Embedder with a Cache. Cache failures are logged
// and never fail Embed. Concurrent calls for the same text share one
// provider request.
type CachedEmbedder struct {
	next  Embedder
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next. A nil cache disables caching but keeps
// request de-duplication.
func NewCachedEmbedder(next Embedder, cache Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, ttl: ttl}
}

func (c *CachedEmbedder) ModelName() string { return c.next.ModelName() }
func (c *CachedEmbedder) Dimensions() int   { return c.next.Dimensions() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.next.ModelName(), text)

	if c.cache != nil {
		vec, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Embedding cache read failed")
		} else if ok {
			return vec, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedEmbedTimeout)
		defer cancel()

		vec, err := c.next.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(shared, key, vec, c.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Embedding cache write failed")
			}
		}
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// RedisCache is a Cache backed by a redigo connection pool.
type RedisCache struct {
	pool *redis.Pool
}

// NewRedisCache creates a pool dialing url (redis://host:port/db).
func NewRedisCache(url string) *RedisCache {
	return &RedisCache{pool: &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	raw, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", key))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	args := []interface{}{key, raw}
	if secs := int64(ttl / time.Second); secs > 0 {
		args = append(args, "EX", secs)
	}
	if _, err := redis.DoContext(conn, ctx, "SET", args...); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (r *RedisCache) Close() error {
	return r.pool.Close()
}
