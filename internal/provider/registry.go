// internal/provider/registry.go
package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// YieldProvider is the uniform protocol contract the aggregator consumes.
type YieldProvider interface {
	Protocol() domain.Protocol
	SupportedChains() []domain.Chain
	SupportedAssets() []domain.Asset
	Supports(chain domain.Chain, asset domain.Asset) bool
	GetYields(ctx context.Context, chain domain.Chain) ([]domain.YieldOpportunity, error)
	GetPoolData(ctx context.Context, chain domain.Chain, asset domain.Asset) domain.YieldOpportunity
	GetCurrentAPY(ctx context.Context, chain domain.Chain, poolAddress string) float64
	GetTVL(ctx context.Context, chain domain.Chain, poolAddress string) *big.Int
}

var _ YieldProvider = (*Provider)(nil)

// Registry manages provider registrations. List preserves registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.Protocol]YieldProvider
	order     []domain.Protocol
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[domain.Protocol]YieldProvider),
		logger:    logger.Named("provider_registry"),
	}
}

// Register adds a provider under its protocol tag.
func (r *Registry) Register(p YieldProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Protocol()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = p
	r.order = append(r.order, name)

	r.logger.Info("Provider registered",
		zap.String("protocol", string(name)),
		zap.Int("chains", len(p.SupportedChains())))

	return nil
}

// Get retrieves a provider by protocol.
func (r *Registry) Get(name domain.Protocol) (YieldProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

// List returns the registered providers in registration order.
func (r *Registry) List() []YieldProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]YieldProvider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Protocols returns the registered protocol tags in registration order.
func (r *Registry) Protocols() []domain.Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Protocol(nil), r.order...)
}

// Unregister removes a provider.
func (r *Registry) Unregister(name domain.Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return fmt.Errorf("provider %s: %w", name, domain.ErrNotFound)
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Provider unregistered", zap.String("protocol", string(name)))
	return nil
}
