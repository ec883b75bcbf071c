package movecost

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/gas"
	"github.com/rovshanmuradov/yieldscope/internal/pricing"
)

type downFetcher struct{}

func (downFetcher) FetchGasPrice(context.Context, domain.Chain) (domain.GasPriceQuote, error) {
	return domain.GasPriceQuote{}, errors.New("gas service down")
}

type stubQuotes struct {
	calls atomic.Int32
	quote domain.SwapQuote
	err   error
}

func (s *stubQuotes) Quote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error) {
	s.calls.Add(1)
	return s.quote, s.err
}

func newTestEstimator(t *testing.T, quotes QuoteClient) *Estimator {
	logger := zaptest.NewLogger(t)
	gasSvc := gas.NewService(downFetcher{}, nil, 0, nil, logger)
	return New(gasSvc, pricing.NewStaticTable(nil), quotes, DefaultGasTable(), nil, logger)
}

func moveRequest(fromChain, toChain domain.Chain, fromAsset, toAsset domain.Asset, amount string) domain.MoveRequest {
	return domain.MoveRequest{
		FromProtocol: domain.ProtocolAave,
		FromChain:    fromChain,
		FromAsset:    fromAsset,
		ToProtocol:   domain.ProtocolCurve,
		ToChain:      toChain,
		ToAsset:      toAsset,
		Amount:       amount,
		UserAddress:  "0x000000000000000000000000000000000000dEaD",
	}
}

func TestCrossChainMoveWithGasServiceDown(t *testing.T) {
	quotes := &stubQuotes{quote: domain.SwapQuote{
		CostUSD:       decimal.RequireFromString("6.5"),
		GasUnits:      250_000,
		BridgeFeeUSD:  decimal.RequireFromString("1.5"),
		EstimatedTime: 3,
	}}
	est := newTestEstimator(t, quotes)

	b, err := est.EstimateMoveCost(context.Background(),
		moveRequest(domain.ChainEthereum, domain.ChainPolygon, domain.AssetUSDC, domain.AssetUSDC, "10000"))
	require.NoError(t, err)

	// 150k gas * 30 gwei * $3500
	assert.Equal(t, "15.75", b.Withdraw.CostUSD.String())
	assert.Equal(t, uint64(150_000), b.Withdraw.GasUnits)
	// 180k gas * 50 gwei * $1
	assert.Equal(t, "0.009", b.Deposit.CostUSD.String())
	require.NotNil(t, b.Swap)
	assert.True(t, b.Swap.CrossChain)
	assert.Equal(t, "1.5", b.Swap.BridgeFeeUSD.String())

	assert.Equal(t, "22.259", b.TotalCostUSD.String())
	assert.Equal(t, 5, b.EstimatedTimeMinutes)
	assert.GreaterOrEqual(t, b.EstimatedTimeMinutes, MinMoveMinutes+b.Swap.EstimatedTime)
	assert.True(t, b.Fallback)
	assert.Equal(t, domain.SourceFallback, b.Withdraw.GasPriceSource)
	assert.Equal(t, "0.2", b.SlippagePercent.String())
	assert.Equal(t, int32(1), quotes.calls.Load())
}

func TestCrossChainMoveFailsFastOnQuoteError(t *testing.T) {
	quotes := &stubQuotes{err: errors.New("quote API 503")}
	est := newTestEstimator(t, quotes)

	b, err := est.EstimateMoveCost(context.Background(),
		moveRequest(domain.ChainEthereum, domain.ChainPolygon, domain.AssetUSDC, domain.AssetUSDC, "10000"))
	var quoteErr *domain.QuoteServiceError
	require.ErrorAs(t, err, &quoteErr)
	assert.Equal(t, domain.ChainEthereum, quoteErr.FromChain)
	assert.Equal(t, domain.MoveCostBreakdown{}, b)
}

func TestSameChainSameAssetHasNoSwap(t *testing.T) {
	quotes := &stubQuotes{}
	est := newTestEstimator(t, quotes)

	b, err := est.EstimateMoveCost(context.Background(),
		moveRequest(domain.ChainEthereum, domain.ChainEthereum, domain.AssetUSDC, domain.AssetUSDC, "2500.5"))
	require.NoError(t, err)

	assert.Nil(t, b.Swap)
	assert.True(t, b.SwapCostUSD().IsZero())
	assert.True(t, b.TotalCostUSD.Equal(b.Withdraw.CostUSD.Add(b.Deposit.CostUSD)))
	assert.Equal(t, "34.65", b.TotalCostUSD.String())
	assert.Equal(t, MinMoveMinutes, b.EstimatedTimeMinutes)
	assert.Equal(t, "0.05", b.SlippagePercent.String())
	assert.Zero(t, quotes.calls.Load())
}

func TestSameChainAssetSwapUsesFlatEstimate(t *testing.T) {
	quotes := &stubQuotes{}
	est := newTestEstimator(t, quotes)

	b, err := est.EstimateMoveCost(context.Background(),
		moveRequest(domain.ChainEthereum, domain.ChainEthereum, domain.AssetUSDC, domain.AssetDAI, "150000"))
	require.NoError(t, err)

	require.NotNil(t, b.Swap)
	assert.False(t, b.Swap.CrossChain)
	assert.Equal(t, domain.SourceEstimate, b.Swap.Source)
	assert.Equal(t, "18.9", b.Swap.CostUSD.String())
	assert.Equal(t, 3, b.EstimatedTimeMinutes)
	assert.Equal(t, "0.2", b.SlippagePercent.String())
	assert.Zero(t, quotes.calls.Load())
}

func TestEstimateMoveCostValidation(t *testing.T) {
	quotes := &stubQuotes{}
	est := newTestEstimator(t, quotes)

	tests := []struct {
		name  string
		req   domain.MoveRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "unsupported chain",
			req:  moveRequest("solana", domain.ChainEthereum, domain.AssetUSDC, domain.AssetUSDC, "1"),
			check: func(t *testing.T, err error) {
				var target *domain.UnsupportedChainError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "unsupported asset",
			req:  moveRequest(domain.ChainEthereum, domain.ChainEthereum, "WETH", domain.AssetUSDC, "1"),
			check: func(t *testing.T, err error) {
				var target *domain.UnsupportedAssetError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "negative amount",
			req:  moveRequest(domain.ChainEthereum, domain.ChainEthereum, domain.AssetUSDC, domain.AssetUSDC, "-5"),
			check: func(t *testing.T, err error) {
				var target *domain.MalformedAmountError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "zero amount",
			req:  moveRequest(domain.ChainEthereum, domain.ChainArbitrum, domain.AssetUSDC, domain.AssetUSDC, "0"),
			check: func(t *testing.T, err error) {
				var target *domain.MalformedAmountError
				assert.ErrorAs(t, err, &target)
				var upstream *domain.QuoteServiceError
				assert.False(t, errors.As(err, &upstream))
			},
		},
		{
			name: "exponent amount",
			req:  moveRequest(domain.ChainEthereum, domain.ChainArbitrum, domain.AssetUSDC, domain.AssetUSDC, "1e99999999"),
			check: func(t *testing.T, err error) {
				var target *domain.MalformedAmountError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "non-numeric amount",
			req:  moveRequest(domain.ChainEthereum, domain.ChainEthereum, domain.AssetUSDC, domain.AssetUSDC, "ten"),
			check: func(t *testing.T, err error) {
				var target *domain.MalformedAmountError
				assert.ErrorAs(t, err, &target)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := est.EstimateMoveCost(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
	assert.Zero(t, quotes.calls.Load())
}

func TestSwapQuoteWithoutClient(t *testing.T) {
	est := newTestEstimator(t, nil)
	_, err := est.SwapQuote(context.Background(), domain.SwapRequest{FromChain: domain.ChainBase, ToChain: domain.ChainOptimism})
	var quoteErr *domain.QuoteServiceError
	assert.ErrorAs(t, err, &quoteErr)
}

func TestEstimateForPosition(t *testing.T) {
	quotes := &stubQuotes{quote: domain.SwapQuote{CostUSD: decimal.NewFromInt(2), EstimatedTime: 10}}
	est := newTestEstimator(t, quotes)

	pos := domain.Position{
		Protocol: domain.ProtocolAave,
		Chain:    domain.ChainArbitrum,
		Asset:    domain.AssetUSDC,
		Amount:   big.NewInt(25_000_000_000), // 25,000 USDC
		Owner:    "0xabc",
	}
	target := domain.YieldOpportunity{Protocol: domain.ProtocolCurve, Chain: domain.ChainOptimism, Asset: domain.AssetUSDC}

	b, err := est.EstimateForPosition(context.Background(), pos, target)
	require.NoError(t, err)
	assert.Equal(t, 12, b.EstimatedTimeMinutes)
	assert.Equal(t, "0.2", b.SlippagePercent.String())

	pos.Amount = big.NewInt(-1)
	_, err = est.EstimateForPosition(context.Background(), pos, target)
	var malformed *domain.MalformedAmountError
	assert.ErrorAs(t, err, &malformed)
}

func TestEstimateSlippage(t *testing.T) {
	tests := []struct {
		amount     string
		crossChain bool
		want       string
	}{
		{"0", false, "0.05"},
		{"9999.99", false, "0.05"},
		{"10000", false, "0.1"},
		{"100000", false, "0.2"},
		{"500", true, "0.1"},
		{"50000", true, "0.2"},
		{"1000000", true, "0.3"},
	}
	for _, tt := range tests {
		got := EstimateSlippage(decimal.RequireFromString(tt.amount), tt.crossChain)
		assert.Equal(t, tt.want, got.String(), "%s cross=%v", tt.amount, tt.crossChain)
	}
}

func TestLoadGasTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("withdraw:\n  aave: 175000\ndeposit:\n  spark: 90000\nsame_chain_swap: 200000\n"), 0o644))

	table, err := LoadGasTable(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(175_000), table.WithdrawUnits(domain.ProtocolAave))
	assert.Equal(t, uint64(200_000), table.WithdrawUnits(domain.ProtocolCurve))
	assert.Equal(t, uint64(90_000), table.DepositUnits("spark"))
	assert.Equal(t, uint64(150_000), table.DepositUnits("unknown"))
	assert.Equal(t, uint64(200_000), table.SameChainSwap)
	assert.Equal(t, 1, table.SameChainSwapMinutes)

	defaults, err := LoadGasTable("")
	require.NoError(t, err)
	assert.Equal(t, DefaultGasTable(), defaults)

	_, err = LoadGasTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
