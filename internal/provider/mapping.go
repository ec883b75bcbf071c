// internal/provider/mapping.go
package provider

import (
	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Mapping declares what a protocol supports and how its raw data maps to opportunities.
type Mapping struct {
	Protocol domain.Protocol
	Chains   []domain.Chain
	Assets   []domain.Asset
	// Stablecoins are matched as case-insensitive substrings of pool coin symbols.
	Stablecoins []string

	WithdrawGas uint64
	DepositGas  uint64
}

// AaveMapping is the Aave V3 support table.
func AaveMapping() Mapping {
	return Mapping{
		Protocol:    domain.ProtocolAave,
		Chains:      []domain.Chain{domain.ChainEthereum, domain.ChainPolygon, domain.ChainArbitrum, domain.ChainBase, domain.ChainOptimism},
		Assets:      []domain.Asset{domain.AssetUSDC, domain.AssetUSDT, domain.AssetDAI},
		Stablecoins: []string{"USDC", "USDT", "DAI"},
		WithdrawGas: 150_000,
		DepositGas:  120_000,
	}
}

// CurveMapping is the Curve support table. Curve has no Base deployment tracked here.
func CurveMapping() Mapping {
	return Mapping{
		Protocol:    domain.ProtocolCurve,
		Chains:      []domain.Chain{domain.ChainEthereum, domain.ChainPolygon, domain.ChainArbitrum, domain.ChainOptimism},
		Assets:      []domain.Asset{domain.AssetUSDC, domain.AssetUSDT, domain.AssetDAI},
		Stablecoins: []string{"USDC", "USDT", "DAI"},
		WithdrawGas: 200_000,
		DepositGas:  180_000,
	}
}

// SupportsChain reports membership in the chain list.
func (m Mapping) SupportsChain(chain domain.Chain) bool {
	for _, c := range m.Chains {
		if c == chain {
			return true
		}
	}
	return false
}

// SupportsAsset reports membership in the asset list.
func (m Mapping) SupportsAsset(asset domain.Asset) bool {
	for _, a := range m.Assets {
		if a == asset {
			return true
		}
	}
	return false
}
