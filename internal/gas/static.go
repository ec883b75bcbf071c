// internal/gas/static.go
package gas

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

type tiers struct {
	standard, fast, instant string
}

// staticTable holds conservative per-chain gas prices in gwei.
var staticTable = map[domain.Chain]tiers{
	domain.ChainEthereum: {"30", "35", "40"},
	domain.ChainPolygon:  {"50", "60", "70"},
	domain.ChainArbitrum: {"0.1", "0.12", "0.15"},
	domain.ChainBase:     {"0.05", "0.06", "0.08"},
	domain.ChainOptimism: {"0.05", "0.06", "0.08"},
}

// StaticQuote returns the fallback quote for chain.
func StaticQuote(chain domain.Chain) (domain.GasPriceQuote, bool) {
	t, ok := staticTable[chain]
	if !ok {
		return domain.GasPriceQuote{}, false
	}
	return domain.GasPriceQuote{
		Chain:     chain,
		Standard:  decimal.RequireFromString(t.standard),
		Fast:      decimal.RequireFromString(t.fast),
		Instant:   decimal.RequireFromString(t.instant),
		Source:    domain.SourceFallback,
		FetchedAt: time.Now().UTC(),
	}, true
}
