// internal/gas/service.go
package gas

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// DefaultCacheTTL is how long a live quote is reused.
const DefaultCacheTTL = 30 * time.Second

// Observer counts served quotes by provenance. *metrics.Collector satisfies it.
type Observer interface {
	RecordGasQuote(chain, source string)
}

// Service serves gas quotes: cache, then the live fetcher, then the static table.
// Fetcher failures are logged and never returned to the caller.
type Service struct {
	fetcher  Fetcher
	cache    Cache
	ttl      time.Duration
	observer Observer
	logger   *zap.Logger
}

// NewService creates the gas service. fetcher and cache may be nil.
func NewService(fetcher Fetcher, cache Cache, ttl time.Duration, observer Observer, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		fetcher:  fetcher,
		cache:    cache,
		ttl:      ttl,
		observer: observer,
		logger:   logger.Named("gas"),
	}
}

// GasPrices returns the tiers for chain. Only an unknown chain is an error.
func (s *Service) GasPrices(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error) {
	fallback, ok := StaticQuote(chain)
	if !ok {
		return domain.GasPriceQuote{}, &domain.UnsupportedChainError{Chain: chain}
	}

	if s.cache != nil {
		if q, hit := s.cache.Get(ctx, chain); hit {
			s.record(q)
			return q, nil
		}
	}

	if s.fetcher != nil {
		q, err := s.fetcher.FetchGasPrice(ctx, chain)
		if err == nil {
			if s.cache != nil {
				s.cache.Set(ctx, q, s.ttl)
			}
			s.record(q)
			return q, nil
		}
		s.logger.Warn("Gas price service failed, using static table",
			zap.Error(&domain.GasPriceServiceError{Chain: chain, Err: err}))
	}

	s.record(fallback)
	return fallback, nil
}

func (s *Service) record(q domain.GasPriceQuote) {
	if s.observer != nil {
		s.observer.RecordGasQuote(string(q.Chain), string(q.Source))
	}
}
