// internal/position/store.go
package position

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Store reads a user's current positions. Writes happen outside this system.
type Store interface {
	Lookup(ctx context.Context, owner string) ([]domain.Position, error)
}

// NormalizeOwner lower-cases an address so lookups are case-insensitive.
func NormalizeOwner(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}

// MemoryStore keeps positions in a map. Used for tests and development.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string][]domain.Position
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string][]domain.Position)}
}

// Put replaces the positions held by owner.
func (s *MemoryStore) Put(owner string, positions ...domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeOwner(owner)
	cp := make([]domain.Position, len(positions))
	for i, p := range positions {
		p.Owner = key
		cp[i] = clonePosition(p)
	}
	s.positions[key] = cp
}

// Lookup returns copies of owner's positions ordered by protocol, chain and asset.
// An unknown owner has no positions.
func (s *MemoryStore) Lookup(_ context.Context, owner string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := s.positions[NormalizeOwner(owner)]
	out := make([]domain.Position, len(held))
	for i, p := range held {
		out[i] = clonePosition(p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Protocol != out[j].Protocol {
			return out[i].Protocol < out[j].Protocol
		}
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Asset < out[j].Asset
	})
	return out, nil
}

func clonePosition(p domain.Position) domain.Position {
	if p.Amount != nil {
		p.Amount = new(big.Int).Set(p.Amount)
	}
	return p
}
