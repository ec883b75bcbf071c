// internal/movecost/slippage.go
package movecost

import (
	"github.com/shopspring/decimal"
)

var (
	mediumMoveThreshold = decimal.NewFromInt(10_000)
	largeMoveThreshold  = decimal.NewFromInt(100_000)

	sameChainSlippage  = [3]decimal.Decimal{decimal.RequireFromString("0.05"), decimal.RequireFromString("0.1"), decimal.RequireFromString("0.2")}
	crossChainSlippage = [3]decimal.Decimal{decimal.RequireFromString("0.1"), decimal.RequireFromString("0.2"), decimal.RequireFromString("0.3")}
)

// EstimateSlippage returns an advisory slippage percentage for moving amount
// token units. It is never added to cost totals.
func EstimateSlippage(amount decimal.Decimal, crossChain bool) decimal.Decimal {
	band := sameChainSlippage
	if crossChain {
		band = crossChainSlippage
	}
	switch {
	case amount.LessThan(mediumMoveThreshold):
		return band[0]
	case amount.LessThan(largeMoveThreshold):
		return band[1]
	default:
		return band[2]
	}
}
