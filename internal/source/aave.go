// internal/source/aave.go
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// aaveReservesQuery selects active reserves of an Aave V3 pool.
// liquidityRate is a ray (1e27) and utilizationRate a 0..1 ratio.
const aaveReservesQuery = `{
  reserves(first: 100, where: {isActive: true}) {
    symbol
    decimals
    liquidityRate
    utilizationRate
    totalATokenSupply
    underlyingAsset
    pool { pool }
  }
}`

// maxTokenDecimals bounds the decimals field of a reserve.
const maxTokenDecimals = 36

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type aaveReservesResponse struct {
	Data struct {
		Reserves []aaveReserve `json:"reserves"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type aaveReserve struct {
	Symbol            string `json:"symbol"`
	Decimals          int32  `json:"decimals"`
	LiquidityRate     string `json:"liquidityRate"`
	UtilizationRate   string `json:"utilizationRate"`
	TotalATokenSupply string `json:"totalATokenSupply"`
	UnderlyingAsset   string `json:"underlyingAsset"`
	Pool              struct {
		Pool string `json:"pool"`
	} `json:"pool"`
}

// AaveSubgraphSource reads Aave V3 reserves from one subgraph endpoint per chain.
type AaveSubgraphSource struct {
	client    *http.Client
	endpoints map[domain.Chain]string
	logger    *zap.Logger
}

// NewAaveSubgraphSource creates the source. Chains without an endpoint are not served.
func NewAaveSubgraphSource(client *http.Client, endpoints map[domain.Chain]string, logger *zap.Logger) *AaveSubgraphSource {
	if client == nil {
		client = NewHTTPClient(DefaultRequestTimeout)
	}
	return &AaveSubgraphSource{
		client:    client,
		endpoints: endpoints,
		logger:    logger.Named("aave_subgraph"),
	}
}

// Name implements Source.
func (s *AaveSubgraphSource) Name() string {
	return "aave-subgraph"
}

// Fetch implements Source. Supply is reported in token units, which for the
// stablecoin reserves this system tracks equals USD.
func (s *AaveSubgraphSource) Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error) {
	endpoint, ok := s.endpoints[chain]
	if !ok || endpoint == "" {
		return nil, &domain.UnsupportedChainError{Chain: chain, Protocol: domain.ProtocolAave}
	}

	var resp aaveReservesResponse
	if err := postJSON(ctx, s.client, endpoint, graphQLRequest{Query: aaveReservesQuery}, &resp); err != nil {
		return nil, fmt.Errorf("aave reserves on %s: %w", chain, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("aave reserves on %s: graphql: %s", chain, resp.Errors[0].Message)
	}

	records := make([]domain.RawRecord, 0, len(resp.Data.Reserves))
	for _, r := range resp.Data.Reserves {
		tvl, err := decimal.NewFromString(r.TotalATokenSupply)
		if err != nil || !unsignedIntegerPattern.MatchString(r.TotalATokenSupply) ||
			r.Decimals < 0 || r.Decimals > maxTokenDecimals {
			s.logger.Debug("Skipping reserve with bad supply",
				zap.String("symbol", r.Symbol),
				zap.String("supply", r.TotalATokenSupply),
				zap.Int32("decimals", r.Decimals))
			continue
		}
		tvl = tvl.Shift(-r.Decimals)

		utilization := ""
		if unsignedDecimalPattern.MatchString(r.UtilizationRate) {
			if u, err := decimal.NewFromString(r.UtilizationRate); err == nil {
				utilization = u.Shift(2).String()
			}
		}

		records = append(records, domain.RawRecord{
			Protocol:     domain.ProtocolAave,
			Chain:        chain,
			Symbol:       r.Symbol,
			Rate:         r.LiquidityRate,
			Encoding:     domain.RateRay,
			TVL:          tvl.String(),
			Utilization:  utilization,
			PoolAddress:  r.Pool.Pool,
			TokenAddress: r.UnderlyingAsset,
			Source:       domain.SourceLive,
		})
	}

	s.logger.Debug("Fetched reserves",
		zap.String("chain", string(chain)),
		zap.Int("count", len(records)))
	return records, nil
}
