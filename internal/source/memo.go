// internal/source/memo.go
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// DefaultMemoTTL is how long fetched records are reused.
const DefaultMemoTTL = 5 * time.Minute

// MemoSource caches another source's results per chain for a TTL.
// The cache is local to the instance.
type MemoSource struct {
	inner Source
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewMemoSource wraps inner. A non-positive ttl selects DefaultMemoTTL.
func NewMemoSource(inner Source, ttl time.Duration) (*MemoSource, error) {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1000,
		MaxCost:            100,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	return &MemoSource{inner: inner, cache: cache, ttl: ttl}, nil
}

// Name implements Source.
func (m *MemoSource) Name() string {
	return m.inner.Name()
}

// Fetch implements Source. Errors are never cached.
func (m *MemoSource) Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error) {
	if v, ok := m.cache.Get(string(chain)); ok {
		return cloneRecords(v.([]domain.RawRecord)), nil
	}

	records, err := m.inner.Fetch(ctx, chain)
	if err != nil {
		return nil, err
	}

	m.cache.SetWithTTL(string(chain), cloneRecords(records), 1, m.ttl)
	m.cache.Wait()
	return records, nil
}

// Invalidate drops every memoized chain.
func (m *MemoSource) Invalidate() {
	m.cache.Clear()
}

// Close releases the cache goroutines.
func (m *MemoSource) Close() {
	m.cache.Close()
}

func cloneRecords(in []domain.RawRecord) []domain.RawRecord {
	out := make([]domain.RawRecord, len(in))
	copy(out, in)
	return out
}
