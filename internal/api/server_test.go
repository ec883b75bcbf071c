package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/gas"
	"github.com/rovshanmuradov/yieldscope/internal/metrics"
	"github.com/rovshanmuradov/yieldscope/internal/movecost"
	"github.com/rovshanmuradov/yieldscope/internal/position"
	"github.com/rovshanmuradov/yieldscope/internal/pricing"
)

type fakeYields struct {
	opps []domain.YieldOpportunity
}

func (f *fakeYields) ListOpportunities(_ context.Context, filter aggregator.Filter) []domain.YieldOpportunity {
	var out []domain.YieldOpportunity
	for _, o := range f.opps {
		if (filter.Asset == "" || o.Asset == filter.Asset) &&
			(filter.Chain == "" || o.Chain == filter.Chain) &&
			(filter.Protocol == "" || o.Protocol == filter.Protocol) {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeYields) GetBestYieldForAsset(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool) {
	return aggregator.BestRiskAdjusted(f.ListOpportunities(ctx, aggregator.Filter{Asset: asset, Chain: chain}))
}

func (f *fakeYields) BestByRawAPY(ctx context.Context, asset domain.Asset, chain domain.Chain) (domain.YieldOpportunity, bool) {
	return aggregator.BestRaw(f.ListOpportunities(ctx, aggregator.Filter{Asset: asset, Chain: chain}))
}

func (f *fakeYields) CompareYieldsAcrossChains(ctx context.Context, asset domain.Asset) aggregator.Comparison {
	opps := f.ListOpportunities(ctx, aggregator.Filter{Asset: asset})
	c := aggregator.Comparison{Asset: asset}
	if best, ok := aggregator.BestRaw(opps); ok {
		c.Best = &best
	}
	return c
}

func (f *fakeYields) AggregateStats(ctx context.Context) aggregator.Stats {
	return aggregator.ComputeStats(f.opps)
}

func (f *fakeYields) SupportedProtocols() []domain.Protocol {
	return []domain.Protocol{domain.ProtocolAave, domain.ProtocolCurve}
}

func (f *fakeYields) SupportedChains() []domain.Chain { return domain.AllChains }
func (f *fakeYields) SupportedAssets() []domain.Asset { return domain.AllAssets }

type stubQuotes struct {
	err error
}

func (s stubQuotes) Quote(context.Context, domain.SwapRequest) (domain.SwapQuote, error) {
	if s.err != nil {
		return domain.SwapQuote{}, s.err
	}
	return domain.SwapQuote{CostUSD: decimal.NewFromInt(4), GasUnits: 200_000, BridgeFeeUSD: decimal.NewFromInt(1), EstimatedTime: 2, Tool: "stargate"}, nil
}

func testOpportunities() []domain.YieldOpportunity {
	return []domain.YieldOpportunity{
		{Protocol: domain.ProtocolAave, Chain: domain.ChainEthereum, Asset: domain.AssetUSDC, CurrentAPY: 4.0, RiskScore: 1.5, TVL: big.NewInt(100_000_000), Source: domain.SourceLive},
		{Protocol: domain.ProtocolAave, Chain: domain.ChainArbitrum, Asset: domain.AssetUSDC, CurrentAPY: 9.0, RiskScore: 6.0, TVL: big.NewInt(5_000), Source: domain.SourceLive},
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Asset: domain.AssetDAI, CurrentAPY: 3.0, RiskScore: 2.0, TVL: big.NewInt(7_000), Source: domain.SourceFallback},
	}
}

type testEnv struct {
	handler  http.Handler
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, quotes stubQuotes, withPositions bool) testEnv {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	gasSvc := gas.NewService(nil, nil, 0, collector, logger)
	est := movecost.New(gasSvc, pricing.NewStaticTable(nil), quotes, movecost.DefaultGasTable(), collector, logger)

	deps := Deps{
		Yields:    &fakeYields{opps: testOpportunities()},
		Estimator: est,
		Gas:       gasSvc,
		Observer:  collector,
		Metrics:   collector.Handler(),
	}
	if withPositions {
		store := position.NewMemoryStore()
		store.Put("0xowner",
			domain.Position{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Asset: domain.AssetUSDC, Amount: big.NewInt(50_000_000_000), APY: 2.0},
			domain.Position{Protocol: domain.ProtocolAave, Chain: domain.ChainEthereum, Asset: domain.AssetUSDC, Amount: big.NewInt(1_000_000), APY: 4.0},
		)
		deps.Positions = store
	}
	return testEnv{handler: NewServer(deps, logger).Router(), registry: reg}
}

func (e testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestListOpportunities(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, false)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
	}{
		{"all", "/api/v1/opportunities", http.StatusOK, 3},
		{"by asset", "/api/v1/opportunities?asset=usdc", http.StatusOK, 2},
		{"by chain id", "/api/v1/opportunities?chain=137", http.StatusOK, 1},
		{"by protocol", "/api/v1/opportunities?protocol=Curve", http.StatusOK, 1},
		{"bad chain", "/api/v1/opportunities?chain=solana", http.StatusBadRequest, 0},
		{"bad asset", "/api/v1/opportunities?asset=WETH", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp struct {
				Count int `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCount, resp.Count)
		})
	}
}

func TestBestOpportunityRanking(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, false)

	var risk, raw domain.YieldOpportunity
	rec := env.do(t, http.MethodGet, "/api/v1/opportunities/best?asset=USDC", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risk))
	assert.Equal(t, domain.ChainEthereum, risk.Chain)

	rec = env.do(t, http.MethodGet, "/api/v1/opportunities/best?asset=USDC&rank=raw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, domain.ChainArbitrum, raw.Chain)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/opportunities/best", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/opportunities/best?asset=USDC&rank=apy", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/opportunities/best?asset=USDT", nil).Code)
}

func TestCompareStatsAndMeta(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, false)

	rec := env.do(t, http.MethodGet, "/api/v1/opportunities/compare?asset=USDC", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cmp aggregator.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.NotNil(t, cmp.Best)
	assert.Equal(t, 9.0, cmp.Best.CurrentAPY)

	rec = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats aggregator.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalOpportunities)
	assert.Equal(t, "100012000", stats.TotalTVL.String())

	rec = env.do(t, http.MethodGet, "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"optimism"`)

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoveCostEndpoint(t *testing.T) {
	req := map[string]string{
		"fromProtocol": "aave", "fromChain": "ethereum", "fromAsset": "usdc",
		"toProtocol": "curve", "toChain": "polygon", "toAsset": "USDC",
		"amount": "10000", "userAddress": "0xabc",
	}

	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, stubQuotes{}, false)
		rec := env.do(t, http.MethodPost, "/api/v1/move-cost", req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var b domain.MoveCostBreakdown
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.True(t, b.Fallback)
		require.NotNil(t, b.Swap)
		assert.Equal(t, 4, b.EstimatedTimeMinutes)
		assert.Equal(t, "19.759", b.TotalCostUSD.String())
	})

	t.Run("quote failure is 502", func(t *testing.T) {
		env := newTestEnv(t, stubQuotes{err: errors.New("upstream 503")}, false)
		rec := env.do(t, http.MethodPost, "/api/v1/move-cost", req)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, stubQuotes{}, false)
		bad := map[string]string{}
		for k, v := range req {
			bad[k] = v
		}
		bad["amount"] = "-1"
		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/v1/move-cost", bad).Code)

		bad["amount"] = "1"
		bad["toChain"] = "fantom"
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/move-cost", bad).Code)

		bad["toChain"] = "polygon"
		bad["slippage"] = "1"
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/move-cost", bad).Code)
	})
}

func TestSwapQuoteEndpoint(t *testing.T) {
	body := map[string]string{"fromChain": "arbitrum", "toChain": "base", "fromAsset": "USDC", "toAsset": "USDC", "amount": "250"}

	env := newTestEnv(t, stubQuotes{}, false)
	rec := env.do(t, http.MethodPost, "/api/v1/swap-quote", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var q domain.SwapQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, "stargate", q.Tool)

	env = newTestEnv(t, stubQuotes{err: errors.New("rate limited")}, false)
	rec = env.do(t, http.MethodPost, "/api/v1/swap-quote", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodPost, "/api/v1/swap-quote", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGasEndpoint(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, false)

	rec := env.do(t, http.MethodGet, "/api/v1/gas/137", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var q domain.GasPriceQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, domain.ChainPolygon, q.Chain)
	assert.Equal(t, domain.SourceFallback, q.Source)
	assert.Equal(t, "50", q.Standard.String())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/gas/optimism", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/gas/56", nil).Code)
}

func TestPositionEndpoints(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, true)

	rec := env.do(t, http.MethodGet, "/api/v1/positions/0xOWNER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var held struct {
		Positions []domain.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &held))
	assert.Len(t, held.Positions, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/positions/0xowner/moves?asset=USDC", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Moves []PositionMove `json:"moves"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Moves, 2)

	// Aave on ethereum already is the best risk-adjusted USDC opportunity.
	assert.Nil(t, resp.Moves[0].Target)
	require.NotNil(t, resp.Moves[1].Target)
	assert.Equal(t, domain.ChainEthereum, resp.Moves[1].Target.Chain)
	assert.InDelta(t, 2.0, resp.Moves[1].APYGain, 1e-9)
	require.NotNil(t, resp.Moves[1].Cost)
	assert.Empty(t, resp.Moves[1].Error)

	noStore := newTestEnv(t, stubQuotes{}, false)
	assert.Equal(t, http.StatusNotImplemented, noStore.do(t, http.MethodGet, "/api/v1/positions/0xowner", nil).Code)
}

func TestMetricsMiddleware(t *testing.T) {
	env := newTestEnv(t, stubQuotes{}, false)
	env.do(t, http.MethodGet, "/api/v1/gas/1", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /api/v1/gas/{chainID}"`)
	assert.Contains(t, rec.Body.String(), "yieldscope_gas_quotes_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.UnsupportedChainError{Chain: "x"}, http.StatusBadRequest},
		{&domain.UnsupportedAssetError{Asset: "x"}, http.StatusBadRequest},
		{&domain.MalformedAmountError{Amount: "x"}, http.StatusUnprocessableEntity},
		{&domain.QuoteServiceError{Err: errors.New("x")}, http.StatusBadGateway},
		{&domain.DataSourceTimeoutError{Err: errors.New("x")}, http.StatusBadGateway},
		{domain.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
