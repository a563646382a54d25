package backend

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/qexpand/internal/models"
)

// DefaultCacheTTL is how long cached result sets live.
const DefaultCacheTTL = 10 * time.Minute

const cacheKeyPrefix = "qexpand:results:"

// RedisClient is the subset of *redis.Client used by Cached.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NewRedisClient returns a client for addr (host:port).
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Cached serves result sets from Redis and falls back to the wrapped backend on a miss.
// Concurrent misses for the same query share one backend call. Cache failures are
// logged and never fail a search.
type Cached struct {
	next      Backend
	client    RedisClient
	namespace string
	ttl       time.Duration
	group     singleflight.Group
	logger    *zap.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCached wraps next. namespace separates keys of different backends sharing one Redis.
func NewCached(next Backend, client RedisClient, namespace string, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		next:      next,
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "result-cache")),
	}
}

// Search implements Backend. Every caller receives its own copy of the result set, so
// labels written by one session never leak into another.
func (c *Cached) Search(ctx context.Context, query string) (*models.ResultSet, error) {
	key := c.Key(query)
	if data, ok := c.get(ctx, key); ok {
		if rs, err := decode(data); err == nil {
			c.hits.Add(1)
			c.logger.Debug("cache hit", zap.String("query", query))
			return rs, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	c.misses.Add(1)

	// The shared call outlives any single caller; each caller stops waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		rs, err := c.next.Search(shared, query)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(rs)
		if err != nil {
			return nil, fmt.Errorf("encode result set: %w", err)
		}
		if err := c.client.Set(shared, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return decode(res.Val.([]byte))
	}
}

// Stats returns the hit and miss counts.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key returns the cache key for query. Queries differing only in case or spacing share a key.
func (c *Cached) Key(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(c.namespace + "|" + normalized))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}

func (c *Cached) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func decode(data []byte) (*models.ResultSet, error) {
	var rs models.ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}
	rs.ResetLabels()
	for _, d := range rs.Docs {
		d.TermFreq = nil
	}
	return &rs, nil
}
