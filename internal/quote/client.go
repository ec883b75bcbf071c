// internal/quote/client.go
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

const (
	// DefaultBaseURL is the public LI.FI API.
	DefaultBaseURL        = "https://li.quest/v1"
	defaultRequestTimeout = 10 * time.Second
)

var errEmptyEstimate = errors.New("quote has no estimate")

type quoteResponse struct {
	Tool     string         `json:"tool"`
	Estimate *quoteEstimate `json:"estimate"`
}

type quoteEstimate struct {
	ExecutionDuration float64   `json:"executionDuration"`
	GasCosts          []gasCost `json:"gasCosts"`
	FeeCosts          []feeCost `json:"feeCosts"`
}

type gasCost struct {
	Estimate  string          `json:"estimate"`
	AmountUSD decimal.Decimal `json:"amountUSD"`
}

type feeCost struct {
	Name      string          `json:"name"`
	AmountUSD decimal.Decimal `json:"amountUSD"`
	Included  bool            `json:"included"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client prices swaps and bridges through a LI.FI-compatible quote API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// NewClient creates a quote client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL, apiKey string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.Named("quote_client"),
	}
}

// Quote returns the cost of moving req.Amount (token units) between chains or assets.
// Every failure is a *domain.QuoteServiceError.
func (c *Client) Quote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error) {
	q, err := c.quote(ctx, req)
	if err != nil {
		return domain.SwapQuote{}, &domain.QuoteServiceError{FromChain: req.FromChain, ToChain: req.ToChain, Err: err}
	}
	return q, nil
}

func (c *Client) quote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error) {
	if !req.FromChain.Valid() || !req.ToChain.Valid() {
		return domain.SwapQuote{}, fmt.Errorf("unknown chain pair %s->%s", req.FromChain, req.ToChain)
	}
	if !req.Amount.IsPositive() {
		return domain.SwapQuote{}, fmt.Errorf("amount must be positive, got %s", req.Amount)
	}

	baseUnits := req.Amount.Shift(req.FromAsset.Decimals()).Truncate(0)
	params := url.Values{}
	params.Set("fromChain", strconv.FormatInt(req.FromChain.ID(), 10))
	params.Set("toChain", strconv.FormatInt(req.ToChain.ID(), 10))
	params.Set("fromToken", string(req.FromAsset))
	params.Set("toToken", string(req.ToAsset))
	params.Set("fromAmount", baseUnits.String())
	if req.UserAddress != "" {
		params.Set("fromAddress", req.UserAddress)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.New().String()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("x-lifi-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("request quote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("read quote: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return domain.SwapQuote{}, fmt.Errorf("quote API status %d: %s", resp.StatusCode, apiErr.Message)
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.SwapQuote{}, fmt.Errorf("decode quote: %w", err)
	}
	if parsed.Estimate == nil {
		return domain.SwapQuote{}, errEmptyEstimate
	}

	q := toSwapQuote(parsed)
	c.logger.Debug("Quote received",
		zap.String("request_id", requestID),
		zap.String("from_chain", string(req.FromChain)),
		zap.String("to_chain", string(req.ToChain)),
		zap.String("tool", q.Tool),
		zap.String("cost_usd", q.CostUSD.String()),
		zap.Duration("latency", time.Since(start)))
	return q, nil
}

// toSwapQuote folds gas and fee costs into CostUSD. BridgeFeeUSD reports the fee share.
func toSwapQuote(r quoteResponse) domain.SwapQuote {
	q := domain.SwapQuote{
		CostUSD:      decimal.Zero,
		BridgeFeeUSD: decimal.Zero,
		Tool:         r.Tool,
	}
	for _, g := range r.Estimate.GasCosts {
		q.CostUSD = q.CostUSD.Add(g.AmountUSD)
		if units, err := strconv.ParseUint(g.Estimate, 10, 64); err == nil {
			q.GasUnits += units
		}
	}
	for _, f := range r.Estimate.FeeCosts {
		q.BridgeFeeUSD = q.BridgeFeeUSD.Add(f.AmountUSD)
	}
	q.CostUSD = q.CostUSD.Add(q.BridgeFeeUSD)

	minutes := int(math.Ceil(r.Estimate.ExecutionDuration / 60))
	if minutes < 1 {
		minutes = 1
	}
	q.EstimatedTime = minutes
	return q
}
