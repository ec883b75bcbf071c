// internal/domain/movecost.go
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's currently held stake. Amount is in token base units.
type Position struct {
	Protocol  Protocol  `json:"protocol"`
	Chain     Chain     `json:"chain"`
	Asset     Asset     `json:"asset"`
	Amount    *big.Int  `json:"amount"`
	APY       float64   `json:"apy"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TokenAmount converts the base-unit amount into whole token units.
func (p Position) TokenAmount() decimal.Decimal {
	if p.Amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(p.Amount, -p.Asset.Decimals())
}

// GasPriceQuote holds gas tiers for one chain, in gwei.
type GasPriceQuote struct {
	Chain     Chain           `json:"chain"`
	Standard  decimal.Decimal `json:"standard"`
	Fast      decimal.Decimal `json:"fast"`
	Instant   decimal.Decimal `json:"instant"`
	Source    Provenance      `json:"source"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// SwapQuote is the quote service's answer for a swap or bridge.
type SwapQuote struct {
	CostUSD       decimal.Decimal `json:"costUSD"`
	GasUnits      uint64          `json:"gasUnits"`
	BridgeFeeUSD  decimal.Decimal `json:"bridgeFee"`
	EstimatedTime int             `json:"estimatedTime"`
	Tool          string          `json:"tool,omitempty"`
}

// CostLeg is a single on-chain step of a move.
type CostLeg struct {
	Chain          Chain           `json:"chain"`
	GasUnits       uint64          `json:"gasUnits"`
	GasPriceGwei   decimal.Decimal `json:"gasPriceGwei"`
	CostNative     decimal.Decimal `json:"costNative"`
	CostUSD        decimal.Decimal `json:"costUSD"`
	GasPriceSource Provenance      `json:"gasPriceSource"`
}

// SwapLeg is the optional swap/bridge step.
type SwapLeg struct {
	GasUnits      uint64          `json:"gasUnits"`
	CostUSD       decimal.Decimal `json:"costUSD"`
	BridgeFeeUSD  decimal.Decimal `json:"bridgeFee"`
	EstimatedTime int             `json:"estimatedTime"`
	CrossChain    bool            `json:"crossChain"`
	Source        Provenance      `json:"source"`
}

// MoveCostBreakdown is the full cost of migrating between two positions.
// TotalCostUSD = Withdraw.CostUSD + Swap.CostUSD (if any) + Deposit.CostUSD.
type MoveCostBreakdown struct {
	Withdraw             CostLeg         `json:"withdraw"`
	Swap                 *SwapLeg        `json:"swap,omitempty"`
	Deposit              CostLeg         `json:"deposit"`
	TotalCostUSD         decimal.Decimal `json:"totalCost"`
	EstimatedTimeMinutes int             `json:"estimatedTime"`
	SlippagePercent      decimal.Decimal `json:"slippagePercent"`
	Fallback             bool            `json:"fallback"`
}

// SwapCostUSD returns the swap leg cost, zero when there is no swap.
func (b MoveCostBreakdown) SwapCostUSD() decimal.Decimal {
	if b.Swap == nil {
		return decimal.Zero
	}
	return b.Swap.CostUSD
}

// MoveRequest describes a migration to price.
type MoveRequest struct {
	FromProtocol Protocol `json:"fromProtocol"`
	FromChain    Chain    `json:"fromChain"`
	FromAsset    Asset    `json:"fromAsset"`
	ToProtocol   Protocol `json:"toProtocol"`
	ToChain      Chain    `json:"toChain"`
	ToAsset      Asset    `json:"toAsset"`
	Amount       string   `json:"amount"`
	UserAddress  string   `json:"userAddress"`
}

// SwapRequest describes a swap/bridge to quote.
type SwapRequest struct {
	FromChain   Chain           `json:"fromChain"`
	ToChain     Chain           `json:"toChain"`
	FromAsset   Asset           `json:"fromAsset"`
	ToAsset     Asset           `json:"toAsset"`
	Amount      decimal.Decimal `json:"amount"`
	UserAddress string          `json:"userAddress"`
}
