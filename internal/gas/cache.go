// internal/gas/cache.go
package gas

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Cache stores live gas quotes for a short TTL.
type Cache interface {
	Get(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, bool)
	Set(ctx context.Context, quote domain.GasPriceQuote, ttl time.Duration)
}

// MemoryCache is an in-process ristretto cache.
type MemoryCache struct {
	cache *ristretto.Cache
}

// NewMemoryCache creates an in-process quote cache.
func NewMemoryCache() (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        100,
		MaxCost:            int64(len(domain.AllChains)) * 2,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create gas cache: %w", err)
	}
	return &MemoryCache{cache: c}, nil
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, chain domain.Chain) (domain.GasPriceQuote, bool) {
	v, ok := m.cache.Get(string(chain))
	if !ok {
		return domain.GasPriceQuote{}, false
	}
	q, ok := v.(domain.GasPriceQuote)
	return q, ok
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, quote domain.GasPriceQuote, ttl time.Duration) {
	m.cache.SetWithTTL(string(quote.Chain), quote, 1, ttl)
	m.cache.Wait()
}

// Close stops the cache goroutines.
func (m *MemoryCache) Close() {
	m.cache.Close()
}

// RedisCache shares quotes between processes. Redis errors read as misses.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed quote cache.
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "yieldscope"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, bool) {
	data, err := r.rdb.Get(ctx, r.key(chain)).Bytes()
	if err != nil {
		return domain.GasPriceQuote{}, false
	}
	var q domain.GasPriceQuote
	if json.Unmarshal(data, &q) != nil {
		return domain.GasPriceQuote{}, false
	}
	return q, true
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, quote domain.GasPriceQuote, ttl time.Duration) {
	if data, err := json.Marshal(quote); err == nil {
		r.rdb.Set(ctx, r.key(quote.Chain), data, ttl)
	}
}

func (r *RedisCache) key(chain domain.Chain) string {
	return fmt.Sprintf("%s:gas:%s", r.prefix, chain)
}
