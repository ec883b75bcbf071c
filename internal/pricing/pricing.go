// internal/pricing/pricing.go
package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Lookup resolves a token symbol to a USD price.
type Lookup interface {
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// DefaultPrices is the approximate table used until a live feed is configured.
var DefaultPrices = map[string]decimal.Decimal{
	"ETH":   decimal.NewFromInt(3500),
	"MATIC": decimal.NewFromInt(1),
	"USDC":  decimal.NewFromInt(1),
	"USDT":  decimal.NewFromInt(1),
	"DAI":   decimal.NewFromInt(1),
}

// StaticTable is a fixed price table. It is safe for concurrent use.
type StaticTable struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticTable copies prices (keys are upper-cased). Nil selects DefaultPrices.
func NewStaticTable(prices map[string]decimal.Decimal) *StaticTable {
	if prices == nil {
		prices = DefaultPrices
	}
	t := &StaticTable{prices: make(map[string]decimal.Decimal, len(prices))}
	for k, v := range prices {
		t.prices[strings.ToUpper(k)] = v
	}
	return t
}

// PriceUSD implements Lookup.
func (t *StaticTable) PriceUSD(_ context.Context, symbol string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s: %w", symbol, domain.ErrNotFound)
	}
	return p, nil
}

// Set overrides one price.
func (t *StaticTable) Set(symbol string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[strings.ToUpper(symbol)] = price
}

// NativePriceUSD returns the USD price of chain's gas token.
func NativePriceUSD(ctx context.Context, lookup Lookup, chain domain.Chain) (decimal.Decimal, error) {
	symbol := chain.NativeSymbol()
	if symbol == "" {
		return decimal.Zero, &domain.UnsupportedChainError{Chain: chain}
	}
	return lookup.PriceUSD(ctx, symbol)
}
