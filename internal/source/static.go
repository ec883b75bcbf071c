// internal/source/static.go
package source

import (
	"context"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// StaticSource serves a fixed dataset. Every record it returns is tagged
// with the configured provenance so callers can tell it apart from live data.
type StaticSource struct {
	name       string
	records    map[domain.Chain][]domain.RawRecord
	provenance domain.Provenance
}

// NewStaticSource creates a source over records keyed by chain.
func NewStaticSource(name string, records map[domain.Chain][]domain.RawRecord, provenance domain.Provenance) *StaticSource {
	return &StaticSource{name: name, records: records, provenance: provenance}
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.name
}

// Fetch implements Source. Unknown chains return an empty slice.
func (s *StaticSource) Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := s.records[chain]
	out := make([]domain.RawRecord, len(src))
	for i, rec := range src {
		rec.Chain = chain
		rec.Source = s.provenance
		if len(rec.Coins) > 0 {
			rec.Coins = append([]domain.RawCoin(nil), rec.Coins...)
		}
		out[i] = rec
	}
	return out, nil
}

// FallbackSource returns the deterministic dataset used when a protocol's
// live source is exhausted.
func FallbackSource(protocol domain.Protocol) *StaticSource {
	var records map[domain.Chain][]domain.RawRecord
	switch protocol {
	case domain.ProtocolAave:
		records = aaveFallback
	case domain.ProtocolCurve:
		records = curveFallback
	}
	return NewStaticSource(string(protocol)+"-fallback", records, domain.SourceFallback)
}

func aaveRecord(symbol, apy, tvl, util string) domain.RawRecord {
	return domain.RawRecord{
		Protocol:    domain.ProtocolAave,
		Symbol:      symbol,
		Rate:        apy,
		Encoding:    domain.RatePercent,
		TVL:         tvl,
		Utilization: util,
	}
}

var aaveFallback = map[domain.Chain][]domain.RawRecord{
	domain.ChainEthereum: {
		aaveRecord("USDC", "4.25", "$1.2B", "82"),
		aaveRecord("USDT", "4.10", "$950M", "79"),
		aaveRecord("DAI", "3.85", "$420M", "71"),
	},
	domain.ChainPolygon: {
		aaveRecord("USDC", "5.10", "$85M", "76"),
		aaveRecord("USDT", "4.95", "$60M", "74"),
		aaveRecord("DAI", "4.40", "$22M", "63"),
	},
	domain.ChainArbitrum: {
		aaveRecord("USDC", "4.80", "$210M", "80"),
		aaveRecord("USDT", "4.55", "$95M", "77"),
		aaveRecord("DAI", "4.05", "$30M", "66"),
	},
	domain.ChainBase: {
		aaveRecord("USDC", "4.65", "$140M", "78"),
	},
	domain.ChainOptimism: {
		aaveRecord("USDC", "4.70", "$48M", "75"),
		aaveRecord("USDT", "4.35", "$25M", "70"),
		aaveRecord("DAI", "3.95", "$12M", "61"),
	},
}

func curveStablePool(pool, apy, tvl string, symbols ...string) domain.RawRecord {
	coins := make([]domain.RawCoin, len(symbols))
	for i, s := range symbols {
		coins[i] = domain.RawCoin{Symbol: s}
	}
	return domain.RawRecord{
		Protocol:    domain.ProtocolCurve,
		Rate:        apy,
		Encoding:    domain.RatePercent,
		TVL:         tvl,
		PoolAddress: pool,
		Coins:       coins,
	}
}

var curveFallback = map[domain.Chain][]domain.RawRecord{
	domain.ChainEthereum: {
		curveStablePool("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7", "2.10", "$180M", "DAI", "USDC", "USDT"),
	},
	domain.ChainPolygon: {
		curveStablePool("0x445FE580eF8d70FF569aB36e80c647af338db351", "3.20", "$12M", "DAI", "USDC", "USDT"),
	},
	domain.ChainArbitrum: {
		curveStablePool("0x7f90122BF0700F9E7e1F688fe926940E8839F353", "2.80", "$25M", "USDC", "USDT"),
	},
	domain.ChainOptimism: {
		curveStablePool("0x1337BedC9D22ecbe766dF105c9623922A27963EC", "2.45", "$8M", "DAI", "USDC", "USDT"),
	},
}
