package gas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

func TestHTTPOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/key/networks/137/suggestedGasFees", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"low":{"suggestedMaxFeePerGas":"41.5"},
			"medium":{"suggestedMaxFeePerGas":"48.25"},
			"high":{"suggestedMaxFeePerGas":"60"}
		}`))
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.Client(), srv.URL+"/v3/key/", zap.NewNop())
	q, err := oracle.FetchGasPrice(context.Background(), domain.ChainPolygon)
	require.NoError(t, err)
	assert.Equal(t, "41.5", q.Standard.String())
	assert.Equal(t, "48.25", q.Fast.String())
	assert.Equal(t, "60", q.Instant.String())
	assert.Equal(t, domain.SourceLive, q.Source)
}

func TestHTTPOracleErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/networks/1/suggestedGasFees" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"low":{},"medium":{},"high":{}}`))
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.Client(), srv.URL, zap.NewNop())
	_, err := oracle.FetchGasPrice(context.Background(), domain.ChainEthereum)
	assert.Error(t, err)
	_, err = oracle.FetchGasPrice(context.Background(), domain.ChainBase)
	assert.Error(t, err)
	_, err = oracle.FetchGasPrice(context.Background(), "solana")
	var unsupported *domain.UnsupportedChainError
	assert.ErrorAs(t, err, &unsupported)
}

func TestStaticQuote(t *testing.T) {
	for _, chain := range domain.AllChains {
		q, ok := StaticQuote(chain)
		require.True(t, ok, chain)
		assert.True(t, q.Standard.IsPositive())
		assert.True(t, q.Fast.GreaterThanOrEqual(q.Standard))
		assert.True(t, q.Instant.GreaterThanOrEqual(q.Fast))
		assert.Equal(t, domain.SourceFallback, q.Source)
	}
	_, ok := StaticQuote("solana")
	assert.False(t, ok)
}

type stubFetcher struct {
	calls atomic.Int32
	err   error
}

func (s *stubFetcher) FetchGasPrice(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.GasPriceQuote{}, s.err
	}
	return domain.GasPriceQuote{
		Chain:    chain,
		Standard: decimal.NewFromInt(12),
		Fast:     decimal.NewFromInt(14),
		Instant:  decimal.NewFromInt(16),
		Source:   domain.SourceLive,
	}, nil
}

type countingObserver struct {
	bySource map[string]int
}

func (c *countingObserver) RecordGasQuote(chain, source string) {
	c.bySource[source]++
}

func TestServiceFallsBackOnFetcherError(t *testing.T) {
	obs := &countingObserver{bySource: map[string]int{}}
	svc := NewService(&stubFetcher{err: errors.New("gas api down")}, nil, 0, obs, zap.NewNop())

	q, err := svc.GasPrices(context.Background(), domain.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, q.Source)
	assert.Equal(t, "30", q.Standard.String())
	assert.Equal(t, 1, obs.bySource["fallback"])

	_, err = svc.GasPrices(context.Background(), "solana")
	assert.Error(t, err)
}

func TestServiceCachesLiveQuotes(t *testing.T) {
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	defer cache.Close()

	fetcher := &stubFetcher{}
	svc := NewService(fetcher, cache, time.Minute, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		q, err := svc.GasPrices(context.Background(), domain.ChainArbitrum)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLive, q.Source)
		assert.Equal(t, "12", q.Standard.String())
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestMemoryCacheHoldsEveryChain(t *testing.T) {
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	for _, chain := range domain.AllChains {
		cache.Set(ctx, domain.GasPriceQuote{Chain: chain, Source: domain.SourceLive}, time.Minute)
	}
	for _, chain := range domain.AllChains {
		q, ok := cache.Get(ctx, chain)
		require.True(t, ok, chain)
		assert.Equal(t, chain, q.Chain)
	}
}

func TestServiceWithoutFetcherUsesStaticTable(t *testing.T) {
	svc := NewService(nil, nil, 0, nil, zap.NewNop())
	q, err := svc.GasPrices(context.Background(), domain.ChainPolygon)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, q.Source)
	assert.Equal(t, "50", q.Standard.String())
}

func TestRedisCacheMissesWhenUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	cache := NewRedisCache(rdb, "")
	assert.Equal(t, "yieldscope:gas:base", cache.key(domain.ChainBase))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cache.Set(ctx, domain.GasPriceQuote{Chain: domain.ChainBase}, time.Second)
	_, ok := cache.Get(ctx, domain.ChainBase)
	assert.False(t, ok)

	svc := NewService(&stubFetcher{}, cache, 0, nil, zap.NewNop())
	q, err := svc.GasPrices(ctx, domain.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, q.Source)
}
