// internal/domain/opportunity.go
package domain

import (
	"math"
	"math/big"
	"time"
)

// YieldOpportunity is a point-in-time snapshot of one (protocol, chain, asset)
// lending position. TVL is held in USD cents.
type YieldOpportunity struct {
	Protocol     Protocol   `json:"protocol"`
	Chain        Chain      `json:"chain"`
	Asset        Asset      `json:"asset"`
	CurrentAPY   float64    `json:"currentAPY"`
	ProjectedAPY *float64   `json:"projectedAPY,omitempty"`
	TVL          *big.Int   `json:"tvl"`
	RiskScore    float64    `json:"risk_score"`
	PoolAddress  string     `json:"poolAddress,omitempty"`
	TokenAddress string     `json:"tokenAddress,omitempty"`
	Source       Provenance `json:"source"`
	FetchedAt    time.Time  `json:"fetchedAt"`
}

// RiskAdjustedAPY is the ranking key: APY divided by the risk score floored at 1.
func (o YieldOpportunity) RiskAdjustedAPY() float64 {
	return o.CurrentAPY / math.Max(o.RiskScore, 1)
}

// TVLUSD converts the cents value to a float for display and scoring.
func (o YieldOpportunity) TVLUSD() float64 {
	if o.TVL == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(o.TVL), big.NewFloat(100)).Float64()
	return f
}

// Rate encodings observed in protocol data.
type RateEncoding string

const (
	RateRay     RateEncoding = "ray"
	RatePercent RateEncoding = "percent"
)

// RawCoin is one constituent of a multi-asset pool.
type RawCoin struct {
	Symbol  string
	Address string
}

// RawRecord is what a data source hands to the normalizer.
type RawRecord struct {
	Protocol     Protocol
	Chain        Chain
	Symbol       string
	Rate         string
	Encoding     RateEncoding
	TVL          string
	Utilization  string
	PoolAddress  string
	TokenAddress string
	Coins        []RawCoin
	Source       Provenance
}
