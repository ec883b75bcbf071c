// internal/source/curve.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// DefaultCurveBaseURL is the public Curve API.
const DefaultCurveBaseURL = "https://api.curve.fi/api"

type curvePoolsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		PoolData []curvePool `json:"poolData"`
	} `json:"data"`
}

type curvePool struct {
	Address  string      `json:"address"`
	Coins    []curveCoin `json:"coins"`
	USDTotal json.Number `json:"usdTotal"`
}

type curveCoin struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

type curveSubgraphResponse struct {
	Success bool `json:"success"`
	Data    struct {
		PoolList []curvePoolAPY `json:"poolList"`
	} `json:"data"`
}

type curvePoolAPY struct {
	Address        string      `json:"address"`
	LatestDailyAPY json.Number `json:"latestDailyApy"`
}

// CurveAPISource joins Curve pool listings with their base APY.
type CurveAPISource struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewCurveAPISource creates the source. An empty baseURL selects the public API.
func NewCurveAPISource(client *http.Client, baseURL string, logger *zap.Logger) *CurveAPISource {
	if client == nil {
		client = NewHTTPClient(DefaultRequestTimeout)
	}
	if baseURL == "" {
		baseURL = DefaultCurveBaseURL
	}
	return &CurveAPISource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("curve_api"),
	}
}

// Name implements Source.
func (s *CurveAPISource) Name() string {
	return "curve-api"
}

// Fetch implements Source. Pools without an APY entry are dropped.
func (s *CurveAPISource) Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error) {
	var (
		pools curvePoolsResponse
		apys  curveSubgraphResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url := fmt.Sprintf("%s/getPools/%s/main", s.baseURL, chain)
		if err := getJSON(gctx, s.client, url, &pools); err != nil {
			return fmt.Errorf("curve pools on %s: %w", chain, err)
		}
		return nil
	})
	g.Go(func() error {
		url := fmt.Sprintf("%s/getSubgraphData/%s", s.baseURL, chain)
		if err := getJSON(gctx, s.client, url, &apys); err != nil {
			return fmt.Errorf("curve apy on %s: %w", chain, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	apyByPool := make(map[string]string, len(apys.Data.PoolList))
	for _, p := range apys.Data.PoolList {
		apyByPool[strings.ToLower(p.Address)] = plainNumber(p.LatestDailyAPY)
	}

	records := make([]domain.RawRecord, 0, len(pools.Data.PoolData))
	for _, p := range pools.Data.PoolData {
		apy, ok := apyByPool[strings.ToLower(p.Address)]
		if !ok || apy == "" {
			continue
		}
		coins := make([]domain.RawCoin, 0, len(p.Coins))
		for _, c := range p.Coins {
			coins = append(coins, domain.RawCoin{Symbol: c.Symbol, Address: c.Address})
		}
		records = append(records, domain.RawRecord{
			Protocol:    domain.ProtocolCurve,
			Chain:       chain,
			Rate:        apy,
			Encoding:    domain.RatePercent,
			TVL:         plainNumber(p.USDTotal),
			PoolAddress: p.Address,
			Coins:       coins,
			Source:      domain.SourceLive,
		})
	}

	s.logger.Debug("Fetched pools",
		zap.String("chain", string(chain)),
		zap.Int("pools", len(pools.Data.PoolData)),
		zap.Int("with_apy", len(records)))
	return records, nil
}
