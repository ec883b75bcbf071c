// internal/position/cached.go
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// DefaultCacheTTL bounds how stale a cached position list can be.
const DefaultCacheTTL = time.Minute

// CachedStore wraps a primary Store with a Redis read-through cache.
// Redis errors degrade to primary reads.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedStore creates a cached wrapper around primary.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger.Named("position_cache"),
	}
}

// Lookup implements Store.
func (s *CachedStore) Lookup(ctx context.Context, owner string) ([]domain.Position, error) {
	key := positionsKey(owner)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var positions []domain.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	} else if err != redis.Nil {
		s.logger.Debug("Position cache unavailable", zap.String("key", key), zap.Error(err))
	}

	positions, err := s.primary.Lookup(ctx, owner)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return positions, nil
}

// Invalidate drops the cached list for owner.
func (s *CachedStore) Invalidate(ctx context.Context, owner string) error {
	return s.rdb.Del(ctx, positionsKey(owner)).Err()
}

func positionsKey(owner string) string {
	return fmt.Sprintf("positions:%s", NormalizeOwner(owner))
}
