// internal/gas/oracle.go
package gas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// Fetcher reads live gas tiers for a chain.
type Fetcher interface {
	FetchGasPrice(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error)
}

// suggestedFeesResponse is the suggestedGasFees payload of an Infura-style gas API.
type suggestedFeesResponse struct {
	Low    feeTier `json:"low"`
	Medium feeTier `json:"medium"`
	High   feeTier `json:"high"`
}

type feeTier struct {
	SuggestedMaxFeePerGas decimal.Decimal `json:"suggestedMaxFeePerGas"`
}

// HTTPOracle queries {baseURL}/networks/{chainID}/suggestedGasFees.
type HTTPOracle struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewHTTPOracle creates a live gas oracle client.
func NewHTTPOracle(client *http.Client, baseURL string, logger *zap.Logger) *HTTPOracle {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPOracle{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("gas_oracle"),
	}
}

// FetchGasPrice implements Fetcher. The low, medium and high fee tiers map to
// standard, fast and instant, in gwei.
func (o *HTTPOracle) FetchGasPrice(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error) {
	if !chain.Valid() {
		return domain.GasPriceQuote{}, &domain.UnsupportedChainError{Chain: chain}
	}

	url := fmt.Sprintf("%s/networks/%d/suggestedGasFees", o.baseURL, chain.ID())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.GasPriceQuote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return domain.GasPriceQuote{}, fmt.Errorf("request gas fees: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return domain.GasPriceQuote{}, fmt.Errorf("gas API status %d: %s", resp.StatusCode, string(body))
	}

	var fees suggestedFeesResponse
	if err := json.NewDecoder(resp.Body).Decode(&fees); err != nil {
		return domain.GasPriceQuote{}, fmt.Errorf("decode gas fees: %w", err)
	}
	if !fees.Low.SuggestedMaxFeePerGas.IsPositive() {
		return domain.GasPriceQuote{}, fmt.Errorf("gas API returned no standard tier for %s", chain)
	}

	o.logger.Debug("Gas fees fetched",
		zap.String("chain", string(chain)),
		zap.String("standard_gwei", fees.Low.SuggestedMaxFeePerGas.String()))

	return domain.GasPriceQuote{
		Chain:     chain,
		Standard:  fees.Low.SuggestedMaxFeePerGas,
		Fast:      fees.Medium.SuggestedMaxFeePerGas,
		Instant:   fees.High.SuggestedMaxFeePerGas,
		Source:    domain.SourceLive,
		FetchedAt: time.Now().UTC(),
	}, nil
}
