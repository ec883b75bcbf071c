// internal/movecost/estimator.go
package movecost

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/pricing"
)

// MinMoveMinutes is the floor of a move's estimated time: two sequential on-chain waits.
const MinMoveMinutes = 2

var gweiToNative = decimal.New(1, -9)

// GasPricer serves gas tiers per chain. It must absorb oracle failures itself.
type GasPricer interface {
	GasPrices(ctx context.Context, chain domain.Chain) (domain.GasPriceQuote, error)
}

// QuoteClient prices cross-chain swaps and bridges.
type QuoteClient interface {
	Quote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error)
}

// Observer counts estimates and quotes. *metrics.Collector satisfies it.
type Observer interface {
	RecordMoveEstimate(success bool)
	RecordSwapQuote(success bool)
}

type nopObserver struct{}

func (nopObserver) RecordMoveEstimate(bool) {}
func (nopObserver) RecordSwapQuote(bool)    {}

// Estimator computes the cost of moving funds between two positions.
// A quote service failure fails the whole estimate with a QuoteServiceError.
type Estimator struct {
	gas      GasPricer
	prices   pricing.Lookup
	quotes   QuoteClient
	table    GasTable
	observer Observer
	logger   *zap.Logger
}

// New creates an estimator. A nil observer disables metrics.
func New(gas GasPricer, prices pricing.Lookup, quotes QuoteClient, table GasTable, observer Observer, logger *zap.Logger) *Estimator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Estimator{
		gas:      gas,
		prices:   prices,
		quotes:   quotes,
		table:    table,
		observer: observer,
		logger:   logger.Named("movecost"),
	}
}

var amountPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// ParseAmount parses a token-unit amount. Anything but a plain positive
// decimal is a MalformedAmountError.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if !amountPattern.MatchString(s) {
		return decimal.Zero, &domain.MalformedAmountError{Amount: raw}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, &domain.MalformedAmountError{Amount: raw}
	}
	return d, nil
}

func validate(req domain.MoveRequest) error {
	for _, c := range []domain.Chain{req.FromChain, req.ToChain} {
		if !c.Valid() {
			return &domain.UnsupportedChainError{Chain: c}
		}
	}
	for _, a := range []domain.Asset{req.FromAsset, req.ToAsset} {
		if !a.Valid() {
			return &domain.UnsupportedAssetError{Asset: a}
		}
	}
	return nil
}

// EstimateMoveCost prices withdraw, the optional swap or bridge, and deposit.
func (e *Estimator) EstimateMoveCost(ctx context.Context, req domain.MoveRequest) (domain.MoveCostBreakdown, error) {
	b, err := e.estimate(ctx, req)
	e.observer.RecordMoveEstimate(err == nil)
	if err != nil {
		e.logger.Warn("Move cost estimate failed",
			zap.String("from", fmt.Sprintf("%s/%s/%s", req.FromProtocol, req.FromChain, req.FromAsset)),
			zap.String("to", fmt.Sprintf("%s/%s/%s", req.ToProtocol, req.ToChain, req.ToAsset)),
			zap.Error(err))
		return domain.MoveCostBreakdown{}, err
	}
	return b, nil
}

func (e *Estimator) estimate(ctx context.Context, req domain.MoveRequest) (domain.MoveCostBreakdown, error) {
	if err := validate(req); err != nil {
		return domain.MoveCostBreakdown{}, err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return domain.MoveCostBreakdown{}, err
	}

	var (
		withdraw, deposit domain.CostLeg
		swap              *domain.SwapLeg
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		leg, err := e.leg(gctx, req.FromChain, e.table.WithdrawUnits(req.FromProtocol))
		withdraw = leg
		return err
	})
	g.Go(func() error {
		leg, err := e.leg(gctx, req.ToChain, e.table.DepositUnits(req.ToProtocol))
		deposit = leg
		return err
	})
	g.Go(func() error {
		leg, err := e.swapLeg(gctx, req, amount)
		swap = leg
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MoveCostBreakdown{}, err
	}

	return compose(withdraw, swap, deposit, req.FromChain != req.ToChain, amount), nil
}

func compose(withdraw domain.CostLeg, swap *domain.SwapLeg, deposit domain.CostLeg, crossChain bool, amount decimal.Decimal) domain.MoveCostBreakdown {
	b := domain.MoveCostBreakdown{
		Withdraw:        withdraw,
		Swap:            swap,
		Deposit:         deposit,
		SlippagePercent: EstimateSlippage(amount, crossChain),
		Fallback: withdraw.GasPriceSource == domain.SourceFallback ||
			deposit.GasPriceSource == domain.SourceFallback,
	}
	b.TotalCostUSD = withdraw.CostUSD.Add(b.SwapCostUSD()).Add(deposit.CostUSD)

	swapMinutes := 0
	if swap != nil {
		swapMinutes = swap.EstimatedTime
	}
	b.EstimatedTimeMinutes = max(MinMoveMinutes, swapMinutes+MinMoveMinutes)
	return b
}

// leg prices units of gas on chain at the standard tier.
func (e *Estimator) leg(ctx context.Context, chain domain.Chain, units uint64) (domain.CostLeg, error) {
	quote, err := e.gas.GasPrices(ctx, chain)
	if err != nil {
		return domain.CostLeg{}, err
	}
	native, usd, err := e.gasCost(ctx, chain, units, quote.Standard)
	if err != nil {
		return domain.CostLeg{}, err
	}
	return domain.CostLeg{
		Chain:          chain,
		GasUnits:       units,
		GasPriceGwei:   quote.Standard,
		CostNative:     native,
		CostUSD:        usd,
		GasPriceSource: quote.Source,
	}, nil
}

func (e *Estimator) gasCost(ctx context.Context, chain domain.Chain, units uint64, gwei decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	price, err := pricing.NativePriceUSD(ctx, e.prices, chain)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("native price for %s: %w", chain, err)
	}
	native := decimal.NewFromInt(int64(units)).Mul(gwei).Mul(gweiToNative)
	return native, native.Mul(price), nil
}

// swapLeg returns nil when chain and asset match, a flat estimate for a
// same-chain asset swap, and an external quote for a cross-chain move.
func (e *Estimator) swapLeg(ctx context.Context, req domain.MoveRequest, amount decimal.Decimal) (*domain.SwapLeg, error) {
	if req.FromChain == req.ToChain {
		if req.FromAsset == req.ToAsset {
			return nil, nil
		}
		return e.sameChainSwap(ctx, req.FromChain)
	}

	q, err := e.SwapQuote(ctx, domain.SwapRequest{
		FromChain:   req.FromChain,
		ToChain:     req.ToChain,
		FromAsset:   req.FromAsset,
		ToAsset:     req.ToAsset,
		Amount:      amount,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		return nil, err
	}
	return &domain.SwapLeg{
		GasUnits:      q.GasUnits,
		CostUSD:       q.CostUSD,
		BridgeFeeUSD:  q.BridgeFeeUSD,
		EstimatedTime: q.EstimatedTime,
		CrossChain:    true,
		Source:        domain.SourceLive,
	}, nil
}

func (e *Estimator) sameChainSwap(ctx context.Context, chain domain.Chain) (*domain.SwapLeg, error) {
	quote, err := e.gas.GasPrices(ctx, chain)
	if err != nil {
		return nil, err
	}
	_, usd, err := e.gasCost(ctx, chain, e.table.SameChainSwap, quote.Standard)
	if err != nil {
		return nil, err
	}
	return &domain.SwapLeg{
		GasUnits:      e.table.SameChainSwap,
		CostUSD:       usd,
		BridgeFeeUSD:  decimal.Zero,
		EstimatedTime: e.table.SameChainSwapMinutes,
		Source:        domain.SourceEstimate,
	}, nil
}

// SwapQuote asks the quote service directly. Failures are QuoteServiceErrors.
func (e *Estimator) SwapQuote(ctx context.Context, req domain.SwapRequest) (domain.SwapQuote, error) {
	if e.quotes == nil {
		e.observer.RecordSwapQuote(false)
		return domain.SwapQuote{}, &domain.QuoteServiceError{
			FromChain: req.FromChain,
			ToChain:   req.ToChain,
			Err:       errors.New("no quote service configured"),
		}
	}

	q, err := e.quotes.Quote(ctx, req)
	e.observer.RecordSwapQuote(err == nil)
	if err != nil {
		var quoteErr *domain.QuoteServiceError
		if errors.As(err, &quoteErr) {
			return domain.SwapQuote{}, err
		}
		return domain.SwapQuote{}, &domain.QuoteServiceError{FromChain: req.FromChain, ToChain: req.ToChain, Err: err}
	}
	return q, nil
}

// EstimateForPosition prices moving a stored position into target.
func (e *Estimator) EstimateForPosition(ctx context.Context, pos domain.Position, target domain.YieldOpportunity) (domain.MoveCostBreakdown, error) {
	if pos.Amount == nil || pos.Amount.Sign() <= 0 {
		return domain.MoveCostBreakdown{}, &domain.MalformedAmountError{Amount: fmt.Sprint(pos.Amount)}
	}
	return e.EstimateMoveCost(ctx, domain.MoveRequest{
		FromProtocol: pos.Protocol,
		FromChain:    pos.Chain,
		FromAsset:    pos.Asset,
		ToProtocol:   target.Protocol,
		ToChain:      target.Chain,
		ToAsset:      target.Asset,
		Amount:       pos.TokenAmount().String(),
		UserAddress:  pos.Owner,
	})
}
