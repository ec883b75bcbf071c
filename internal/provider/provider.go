// internal/provider/provider.go
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/normalize"
	"github.com/rovshanmuradov/yieldscope/internal/source"
)

// ExhaustionPolicy decides what GetYields does once retries run out.
type ExhaustionPolicy string

const (
	// ExhaustFail surfaces the failure as a DataSourceTimeoutError.
	ExhaustFail ExhaustionPolicy = "fail"
	// ExhaustFallback serves the deterministic fallback dataset tagged "fallback".
	ExhaustFallback ExhaustionPolicy = "fallback"
)

// ParseExhaustionPolicy validates a configured policy name.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch p := ExhaustionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ExhaustFail, ExhaustFallback:
		return p, nil
	case "":
		return ExhaustFail, nil
	default:
		return "", fmt.Errorf("unknown exhaustion policy %q", s)
	}
}

// Options tunes retry and snapshot behaviour.
type Options struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Exhaustion      ExhaustionPolicy
	// SnapshotTTL bounds how long derived lookups reuse the last GetYields result.
	SnapshotTTL time.Duration
}

// DefaultOptions returns 3 tries waiting 1s then 2s, failing on exhaustion.
func DefaultOptions() Options {
	return Options{
		MaxTries:        3,
		InitialInterval: time.Second,
		MaxInterval:     2 * time.Second,
		Exhaustion:      ExhaustFail,
		SnapshotTTL:     5 * time.Minute,
	}
}

type snapshot struct {
	opportunities []domain.YieldOpportunity
	takenAt       time.Time
}

// Provider composes a data source and the normalizer behind the protocol contract.
type Provider struct {
	mapping    Mapping
	source     source.Source
	fallback   source.Source
	normalizer *normalize.Normalizer
	opts       Options
	logger     *zap.Logger

	mu        sync.RWMutex
	snapshots map[domain.Chain]snapshot
}

// New creates a provider. fallback is only consulted under ExhaustFallback.
func New(mapping Mapping, src, fallback source.Source, normalizer *normalize.Normalizer, opts Options, logger *zap.Logger) *Provider {
	def := DefaultOptions()
	if opts.MaxTries == 0 {
		opts.MaxTries = def.MaxTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval * 2
	}
	if opts.Exhaustion == "" {
		opts.Exhaustion = def.Exhaustion
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = def.SnapshotTTL
	}

	return &Provider{
		mapping:    mapping,
		source:     src,
		fallback:   fallback,
		normalizer: normalizer,
		opts:       opts,
		logger:     logger.Named(string(mapping.Protocol)),
		snapshots:  make(map[domain.Chain]snapshot),
	}
}

// Protocol returns the protocol tag.
func (p *Provider) Protocol() domain.Protocol {
	return p.mapping.Protocol
}

// Mapping returns the support table.
func (p *Provider) Mapping() Mapping {
	return p.mapping
}

// ExhaustionPolicy reports the declared policy.
func (p *Provider) ExhaustionPolicy() ExhaustionPolicy {
	return p.opts.Exhaustion
}

// SupportedChains returns the declared chain list.
func (p *Provider) SupportedChains() []domain.Chain {
	return append([]domain.Chain(nil), p.mapping.Chains...)
}

// SupportedAssets returns the declared asset list.
func (p *Provider) SupportedAssets() []domain.Asset {
	return append([]domain.Asset(nil), p.mapping.Assets...)
}

// Supports is a pure membership check.
func (p *Provider) Supports(chain domain.Chain, asset domain.Asset) bool {
	return p.mapping.SupportsChain(chain) && p.mapping.SupportsAsset(asset)
}

// GetYields fetches, normalizes and filters opportunities for one chain.
func (p *Provider) GetYields(ctx context.Context, chain domain.Chain) ([]domain.YieldOpportunity, error) {
	if !p.mapping.SupportsChain(chain) {
		return nil, &domain.UnsupportedChainError{Chain: chain, Protocol: p.mapping.Protocol}
	}

	records, attempts, err := p.fetchWithRetry(ctx, chain)
	var unsupported *domain.UnsupportedChainError
	if errors.As(err, &unsupported) {
		return nil, unsupported
	}
	if err != nil {
		if p.opts.Exhaustion != ExhaustFallback || p.fallback == nil || ctx.Err() != nil {
			return nil, &domain.DataSourceTimeoutError{
				Protocol: p.mapping.Protocol,
				Chain:    chain,
				Attempts: attempts,
				Err:      err,
			}
		}
		p.logger.Warn("Data source exhausted, serving fallback data",
			zap.String("chain", string(chain)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		records, err = p.fallback.Fetch(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("fallback data for %s/%s: %w", p.mapping.Protocol, chain, err)
		}
	}

	expanded := p.expand(records, chain)
	normalized := p.normalizer.NormalizeBatch(expanded)

	opportunities := make([]domain.YieldOpportunity, 0, len(normalized))
	for _, opp := range normalized {
		if !p.Supports(opp.Chain, opp.Asset) {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	p.mu.Lock()
	p.snapshots[chain] = snapshot{opportunities: opportunities, takenAt: time.Now()}
	p.mu.Unlock()

	p.logger.Debug("Yields fetched",
		zap.String("chain", string(chain)),
		zap.Int("records", len(records)),
		zap.Int("opportunities", len(opportunities)))

	return cloneOpportunities(opportunities), nil
}

func (p *Provider) fetchWithRetry(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.opts.InitialInterval
	policy.MaxInterval = p.opts.MaxInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempts := 0
	operation := func() ([]domain.RawRecord, error) {
		attempts++
		records, err := p.source.Fetch(ctx, chain)
		var unsupported *domain.UnsupportedChainError
		if errors.As(err, &unsupported) {
			return nil, backoff.Permanent(err)
		}
		return records, err
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Info("Retrying data source fetch",
			zap.String("source", p.source.Name()),
			zap.String("chain", string(chain)),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	records, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(p.opts.MaxTries),
		backoff.WithNotify(notify))
	return records, attempts, err
}

// expand resolves each record to canonical assets. A multi-coin pool yields one
// record per stablecoin constituent, all sharing the pool's rate, TVL and address.
func (p *Provider) expand(records []domain.RawRecord, chain domain.Chain) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, len(records))
	for _, rec := range records {
		rec.Chain = chain
		if rec.Protocol == "" {
			rec.Protocol = p.mapping.Protocol
		}

		if len(rec.Coins) == 0 {
			asset, ok := p.matchAsset(rec.Symbol)
			if !ok {
				continue
			}
			rec.Symbol = string(asset)
			out = append(out, rec)
			continue
		}

		seen := make(map[domain.Asset]bool, len(rec.Coins))
		for _, coin := range rec.Coins {
			asset, ok := p.matchAsset(coin.Symbol)
			if !ok || seen[asset] {
				continue
			}
			seen[asset] = true

			item := rec
			item.Symbol = string(asset)
			item.TokenAddress = coin.Address
			item.Coins = nil
			out = append(out, item)
		}
	}
	return out
}

func (p *Provider) matchAsset(symbol string) (domain.Asset, bool) {
	if asset, err := domain.ParseAsset(symbol); err == nil {
		return asset, true
	}
	upper := strings.ToUpper(symbol)
	for _, stable := range p.mapping.Stablecoins {
		if stable != "" && strings.Contains(upper, strings.ToUpper(stable)) {
			asset, err := domain.ParseAsset(stable)
			if err != nil {
				continue
			}
			return asset, true
		}
	}
	return "", false
}

// snapshotFor returns the recent GetYields result, fetching once if there is none.
func (p *Provider) snapshotFor(ctx context.Context, chain domain.Chain) []domain.YieldOpportunity {
	p.mu.RLock()
	snap, ok := p.snapshots[chain]
	p.mu.RUnlock()
	if ok && time.Since(snap.takenAt) < p.opts.SnapshotTTL {
		return snap.opportunities
	}

	opps, err := p.GetYields(ctx, chain)
	if err != nil {
		p.logger.Debug("Snapshot unavailable",
			zap.String("chain", string(chain)),
			zap.Error(err))
		return nil
	}
	return opps
}

// GetPoolData returns the highest-APY opportunity for asset on chain, or a zero value.
func (p *Provider) GetPoolData(ctx context.Context, chain domain.Chain, asset domain.Asset) domain.YieldOpportunity {
	var candidates []domain.YieldOpportunity
	for _, opp := range p.snapshotFor(ctx, chain) {
		if opp.Asset == asset {
			candidates = append(candidates, opp)
		}
	}
	if len(candidates) == 0 {
		return domain.YieldOpportunity{}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CurrentAPY > candidates[j].CurrentAPY
	})
	return candidates[0]
}

// GetCurrentAPY returns the APY of a pool, or 0 when unknown.
func (p *Provider) GetCurrentAPY(ctx context.Context, chain domain.Chain, poolAddress string) float64 {
	if opp, ok := p.findPool(ctx, chain, poolAddress); ok {
		return opp.CurrentAPY
	}
	return 0
}

// GetTVL returns the TVL of a pool in USD cents, or 0 when unknown.
func (p *Provider) GetTVL(ctx context.Context, chain domain.Chain, poolAddress string) *big.Int {
	if opp, ok := p.findPool(ctx, chain, poolAddress); ok && opp.TVL != nil {
		return new(big.Int).Set(opp.TVL)
	}
	return new(big.Int)
}

func (p *Provider) findPool(ctx context.Context, chain domain.Chain, poolAddress string) (domain.YieldOpportunity, bool) {
	if poolAddress == "" {
		return domain.YieldOpportunity{}, false
	}
	for _, opp := range p.snapshotFor(ctx, chain) {
		if strings.EqualFold(opp.PoolAddress, poolAddress) {
			return opp, true
		}
	}
	return domain.YieldOpportunity{}, false
}

func cloneOpportunities(in []domain.YieldOpportunity) []domain.YieldOpportunity {
	out := make([]domain.YieldOpportunity, len(in))
	copy(out, in)
	return out
}
