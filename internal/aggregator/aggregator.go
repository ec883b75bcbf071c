// internal/aggregator/aggregator.go
package aggregator

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/provider"
)

// Observer receives per-slot fetch outcomes. *metrics.Collector satisfies it.
type Observer interface {
	RecordSourceFetch(protocol, chain string, duration time.Duration, err error)
	SetOpportunities(protocol, chain string, n int)
}

type nopObserver struct{}

func (nopObserver) RecordSourceFetch(string, string, time.Duration, error) {}
func (nopObserver) SetOpportunities(string, string, int)                  {}

// Filter narrows ListOpportunities. Empty fields match everything.
type Filter struct {
	Asset    domain.Asset
	Chain    domain.Chain
	Protocol domain.Protocol
}

func (f Filter) match(o domain.YieldOpportunity) bool {
	return (f.Asset == "" || o.Asset == f.Asset) &&
		(f.Chain == "" || o.Chain == f.Chain) &&
		(f.Protocol == "" || o.Protocol == f.Protocol)
}

// SlotFailure records one (protocol, chain) fetch that was excluded.
type SlotFailure struct {
	Protocol domain.Protocol `json:"protocol"`
	Chain    domain.Chain    `json:"chain"`
	Error    string          `json:"error"`
}

// Snapshot is the merged result of one fan-out.
type Snapshot struct {
	Opportunities []domain.YieldOpportunity `json:"opportunities"`
	Failures      []SlotFailure             `json:"failures,omitempty"`
	CollectedAt   time.Time                 `json:"collectedAt"`
}

// ChainYields is one chain's slice of a cross-chain comparison.
type ChainYields struct {
	Chain         domain.Chain              `json:"chain"`
	Opportunities []domain.YieldOpportunity `json:"opportunities"`
	Best          *domain.YieldOpportunity  `json:"best,omitempty"`
}

// Comparison is the result of CompareYieldsAcrossChains. Best is chosen by raw APY.
type Comparison struct {
	Asset   domain.Asset             `json:"asset"`
	ByChain []ChainYields            `json:"byChain"`
	Best    *domain.YieldOpportunity `json:"best,omitempty"`
}

// Stats summarizes the merged opportunity set.
type Stats struct {
	BestAPY            float64  `json:"bestAPY"`
	TotalOpportunities int      `json:"totalOpportunities"`
	UniqueChains       int      `json:"uniqueChains"`
	TotalTVL           *big.Int `json:"totalTVL"`
}

// Aggregator fans out across every registered provider and supported chain.
type Aggregator struct {
	registry *provider.Registry
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an aggregator. A nil observer disables metrics.
func New(registry *provider.Registry, observer Observer, logger *zap.Logger) *Aggregator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Aggregator{
		registry: registry,
		observer: observer,
		logger:   logger.Named("aggregator"),
		now:      time.Now,
	}
}

type slot struct {
	provider provider.YieldProvider
	chain    domain.Chain
}

type slotResult struct {
	opportunities []domain.YieldOpportunity
	err           error
}

// slots lists (provider, chain) pairs in registration then chain order,
// skipping pairs the filter rules out before any fetch.
func (a *Aggregator) slots(f Filter) []slot {
	var out []slot
	for _, p := range a.registry.List() {
		if f.Protocol != "" && p.Protocol() != f.Protocol {
			continue
		}
		for _, c := range p.SupportedChains() {
			if f.Chain != "" && c != f.Chain {
				continue
			}
			if f.Asset != "" && !p.Supports(c, f.Asset) {
				continue
			}
			out = append(out, slot{provider: p, chain: c})
		}
	}
	return out
}

func (a *Aggregator) collect(ctx context.Context, f Filter) Snapshot {
	slots := a.slots(f)
	results := make([]slotResult, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range slots {
		g.Go(func() error {
			start := time.Now()
			opps, err := s.provider.GetYields(gctx, s.chain)
			protocol, chainName := string(s.provider.Protocol()), string(s.chain)
			a.observer.RecordSourceFetch(protocol, chainName, time.Since(start), err)
			if err != nil {
				a.logger.Warn("Provider fetch failed, excluding from results",
					zap.String("protocol", protocol),
					zap.String("chain", chainName),
					zap.Error(err))
				results[i] = slotResult{err: err}
				return nil
			}
			a.observer.SetOpportunities(protocol, chainName, len(opps))
			results[i] = slotResult{opportunities: opps}
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{CollectedAt: a.now().UTC()}
	for i, r := range results {
		if r.err != nil {
			snap.Failures = append(snap.Failures, SlotFailure{
				Protocol: slots[i].provider.Protocol(),
				Chain:    slots[i].chain,
				Error:    r.err.Error(),
			})
			continue
		}
		snap.Opportunities = append(snap.Opportunities, r.opportunities...)
	}

	a.logger.Debug("Aggregation finished",
		zap.Int("slots", len(slots)),
		zap.Int("failures", len(snap.Failures)),
		zap.Int("opportunities", len(snap.Opportunities)))
	return snap
}

// Collect runs a full fan-out and reports excluded slots alongside the merged set.
func (a *Aggregator) Collect(ctx context.Context) Snapshot {
	return a.collect(ctx, Filter{})
}

// GetAllYields returns every opportunity from every healthy (provider, chain) slot.
func (a *Aggregator) GetAllYields(ctx context.Context) []domain.YieldOpportunity {
	return a.collect(ctx, Filter{}).Opportunities
}

// GetYieldsForAsset returns opportunities for asset, optionally on one chain,
// sorted by CurrentAPY descending. Equal APYs keep fan-out order.
func (a *Aggregator) GetYieldsForAsset(ctx context.Context, asset domain.Asset, chain domain.Chain) []domain.YieldOpportunity {
	f := Filter{Asset: asset, Chain: chain}
	opps := filter(a.collect(ctx, f).Opportunities, f)
	SortByAPY(opps)
	return opps
}

// GetBestYieldForAsset returns the opportunity with the highest risk-adjusted APY.
// Ties go to the earliest entry in APY-descending order.
func (a *Aggregator) GetBestYieldForAsset(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool) {
	return BestRiskAdjusted(a.GetYieldsForAsset(ctx, asset, chain))
}

// BestByRawAPY returns the opportunity with the highest CurrentAPY.
func (a *Aggregator) BestByRawAPY(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool) {
	return BestRaw(a.GetYieldsForAsset(ctx, asset, chain))
}

// CompareYieldsAcrossChains fetches every chain for asset concurrently and
// returns the per-chain breakdown plus the global best by raw APY.
func (a *Aggregator) CompareYieldsAcrossChains(ctx context.Context, asset domain.Asset) Comparison {
	chains := a.SupportedChains()
	perChain := make([][]domain.YieldOpportunity, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chains {
		g.Go(func() error {
			perChain[i] = a.GetYieldsForAsset(gctx, asset, c)
			return nil
		})
	}
	_ = g.Wait()

	cmp := Comparison{Asset: asset, ByChain: make([]ChainYields, 0, len(chains))}
	var all []domain.YieldOpportunity
	for i, c := range chains {
		entry := ChainYields{Chain: c, Opportunities: perChain[i]}
		if best, ok := BestRaw(perChain[i]); ok {
			entry.Best = &best
		}
		cmp.ByChain = append(cmp.ByChain, entry)
		all = append(all, perChain[i]...)
	}
	if best, ok := BestRaw(all); ok {
		cmp.Best = &best
	}
	return cmp
}

// ListOpportunities returns opportunities matching filter, sorted by APY descending.
func (a *Aggregator) ListOpportunities(ctx context.Context, f Filter) []domain.YieldOpportunity {
	opps := filter(a.collect(ctx, f).Opportunities, f)
	SortByAPY(opps)
	return opps
}

// AggregateStats summarizes the full opportunity set.
func (a *Aggregator) AggregateStats(ctx context.Context) Stats {
	return ComputeStats(a.GetAllYields(ctx))
}

// SupportedProtocols lists registered protocols in registration order.
func (a *Aggregator) SupportedProtocols() []domain.Protocol {
	return a.registry.Protocols()
}

// SupportedChains returns the deduplicated union of provider chains, in canonical order.
func (a *Aggregator) SupportedChains() []domain.Chain {
	seen := make(map[domain.Chain]bool)
	for _, p := range a.registry.List() {
		for _, c := range p.SupportedChains() {
			seen[c] = true
		}
	}
	out := make([]domain.Chain, 0, len(seen))
	for _, c := range domain.AllChains {
		if seen[c] {
			out = append(out, c)
			delete(seen, c)
		}
	}
	rest := make([]domain.Chain, 0, len(seen))
	for c := range seen {
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// SupportedAssets returns the deduplicated union of provider assets.
func (a *Aggregator) SupportedAssets() []domain.Asset {
	seen := make(map[domain.Asset]bool)
	var out []domain.Asset
	for _, p := range a.registry.List() {
		for _, asset := range p.SupportedAssets() {
			if !seen[asset] {
				seen[asset] = true
				out = append(out, asset)
			}
		}
	}
	return out
}

// SortByAPY sorts in place by CurrentAPY descending, keeping input order on ties.
func SortByAPY(opps []domain.YieldOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].CurrentAPY > opps[j].CurrentAPY
	})
}

// BestRiskAdjusted returns the first entry with the maximal RiskAdjustedAPY.
func BestRiskAdjusted(opps []domain.YieldOpportunity) (domain.YieldOpportunity, bool) {
	if len(opps) == 0 {
		return domain.YieldOpportunity{}, false
	}
	best := 0
	for i := 1; i < len(opps); i++ {
		if opps[i].RiskAdjustedAPY() > opps[best].RiskAdjustedAPY() {
			best = i
		}
	}
	return opps[best], true
}

// BestRaw returns the first entry with the maximal CurrentAPY.
func BestRaw(opps []domain.YieldOpportunity) (domain.YieldOpportunity, bool) {
	if len(opps) == 0 {
		return domain.YieldOpportunity{}, false
	}
	best := 0
	for i := 1; i < len(opps); i++ {
		if opps[i].CurrentAPY > opps[best].CurrentAPY {
			best = i
		}
	}
	return opps[best], true
}

// ComputeStats summarizes opps. Pools shared by several assets count their TVL once.
func ComputeStats(opps []domain.YieldOpportunity) Stats {
	stats := Stats{TotalOpportunities: len(opps), TotalTVL: new(big.Int)}
	chains := make(map[domain.Chain]bool)
	pools := make(map[string]bool)

	for _, o := range opps {
		if o.CurrentAPY > stats.BestAPY {
			stats.BestAPY = o.CurrentAPY
		}
		chains[o.Chain] = true

		if o.TVL == nil {
			continue
		}
		if o.PoolAddress != "" {
			key := string(o.Protocol) + "/" + string(o.Chain) + "/" + strings.ToLower(o.PoolAddress)
			if pools[key] {
				continue
			}
			pools[key] = true
		}
		stats.TotalTVL.Add(stats.TotalTVL, o.TVL)
	}
	stats.UniqueChains = len(chains)
	return stats
}

func filter(opps []domain.YieldOpportunity, f Filter) []domain.YieldOpportunity {
	out := make([]domain.YieldOpportunity, 0, len(opps))
	for _, o := range opps {
		if f.match(o) {
			out = append(out, o)
		}
	}
	return out
}
