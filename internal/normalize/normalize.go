// internal/normalize/normalize.go
package normalize

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Risk score weights and bounds.
const (
	APYRiskWeight         = 0.5
	TVLRiskWeight         = 0.3
	UtilizationRiskWeight = 0.2

	// APYRiskSaturation is the APY (percent) at which the APY term reaches 1.
	APYRiskSaturation = 20.0

	MinRiskScore = 0.1
	MaxRiskScore = 10.0

	// DefaultTVLMinRiskUSD is the TVL at which the liquidity term drops to 0.
	DefaultTVLMinRiskUSD = 1e9

	// ProjectedUtilizationBoost scales current APY by utilization for the projection.
	ProjectedUtilizationBoost = 0.1
)

// rayPercentShift turns a 1e27 fixed-point rate into percent: /1e27 * 100.
const rayPercentShift = -25

var errEmpty = errors.New("empty value")

// Accepted number grammars, checked after trimming and before any decimal
// arithmetic. Exponent notation is never accepted.
var (
	rayPattern     = regexp.MustCompile(`^\d+$`)
	percentPattern = regexp.MustCompile(`^[<>~]?\s*\d[\d,]*(\.\d+)?\s*%?$`)
	tvlPattern     = regexp.MustCompile(`^\$?\s*\d[\d,]*(\.\d+)?\s*[KMBkmb]?$`)

	errNegative = errors.New("negative value")
	errSyntax   = errors.New("invalid number syntax")
)

func syntaxError(s string) error {
	if strings.HasPrefix(strings.TrimLeft(s, "$<>~ "), "-") {
		return errNegative
	}
	return errSyntax
}

// Normalizer converts raw protocol records into YieldOpportunity values.
type Normalizer struct {
	logger        *zap.Logger
	tvlMinRiskUSD float64
	now           func() time.Time
}

// NewNormalizer creates a normalizer. A non-positive tvlMinRiskUSD selects the default.
func NewNormalizer(logger *zap.Logger, tvlMinRiskUSD float64) *Normalizer {
	if tvlMinRiskUSD <= 0 {
		tvlMinRiskUSD = DefaultTVLMinRiskUSD
	}
	return &Normalizer{
		logger:        logger.Named("normalizer"),
		tvlMinRiskUSD: tvlMinRiskUSD,
		now:           time.Now,
	}
}

// Normalize converts one record. The record's Symbol must already be the canonical asset.
func (n *Normalizer) Normalize(rec domain.RawRecord) (domain.YieldOpportunity, error) {
	apy, err := ParseRate(rec.Rate, rec.Encoding)
	if err != nil {
		return domain.YieldOpportunity{}, err
	}

	tvl, err := ParseTVL(rec.TVL)
	if err != nil {
		return domain.YieldOpportunity{}, err
	}

	var utilization float64
	var hasUtilization bool
	if strings.TrimSpace(rec.Utilization) != "" {
		utilization, err = ParsePercent(rec.Utilization)
		if err != nil {
			return domain.YieldOpportunity{}, &domain.MalformedDataError{Field: "utilization", Value: rec.Utilization, Err: err}
		}
		utilization = math.Min(utilization, 100)
		hasUtilization = true
	}

	source := rec.Source
	if source == "" {
		source = domain.SourceLive
	}

	opp := domain.YieldOpportunity{
		Protocol:     rec.Protocol,
		Chain:        rec.Chain,
		Asset:        domain.Asset(strings.ToUpper(strings.TrimSpace(rec.Symbol))),
		CurrentAPY:   apy,
		TVL:          tvl,
		PoolAddress:  rec.PoolAddress,
		TokenAddress: rec.TokenAddress,
		Source:       source,
		FetchedAt:    n.now().UTC(),
	}
	opp.RiskScore = RiskScore(apy, opp.TVLUSD(), utilization, n.tvlMinRiskUSD)

	if hasUtilization {
		projected := ProjectAPY(apy, utilization)
		opp.ProjectedAPY = &projected
	}

	return opp, nil
}

// NormalizeBatch converts records, skipping malformed rows with a warning.
func (n *Normalizer) NormalizeBatch(records []domain.RawRecord) []domain.YieldOpportunity {
	out := make([]domain.YieldOpportunity, 0, len(records))
	for _, rec := range records {
		opp, err := n.Normalize(rec)
		if err != nil {
			n.logger.Warn("Skipping malformed record",
				zap.String("protocol", string(rec.Protocol)),
				zap.String("chain", string(rec.Chain)),
				zap.String("symbol", rec.Symbol),
				zap.Error(err))
			continue
		}
		out = append(out, opp)
	}
	return out
}

// ParseRate converts a protocol rate encoding into a plain percentage.
func ParseRate(raw string, enc domain.RateEncoding) (float64, error) {
	switch enc {
	case domain.RateRay:
		return ParseRayAPY(raw)
	case domain.RatePercent, "":
		return ParsePercent(raw)
	default:
		return 0, &domain.MalformedDataError{Field: "rate", Value: raw, Err: fmt.Errorf("unknown encoding %q", enc)}
	}
}

// ParseRayAPY converts a ray (1e27) liquidity rate into percent: rate / 1e27 * 100.
func ParseRayAPY(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &domain.MalformedDataError{Field: "rate", Value: raw, Err: errEmpty}
	}
	if !rayPattern.MatchString(s) {
		return 0, &domain.MalformedDataError{Field: "rate", Value: raw, Err: syntaxError(s)}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &domain.MalformedDataError{Field: "rate", Value: raw, Err: err}
	}
	return d.Shift(rayPercentShift).InexactFloat64(), nil
}

// ParsePercent parses "4.04%", "<0.01%" or "4.04" into 4.04.
func ParsePercent(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s != "" && s != "%" && !percentPattern.MatchString(s) {
		return 0, &domain.MalformedDataError{Field: "percent", Value: raw, Err: syntaxError(s)}
	}
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimLeft(s, "<>~ ")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &domain.MalformedDataError{Field: "percent", Value: raw, Err: errEmpty}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &domain.MalformedDataError{Field: "percent", Value: raw, Err: err}
	}
	return d.InexactFloat64(), nil
}

var tvlSuffixes = map[byte]decimal.Decimal{
	'K': decimal.New(1, 3),
	'M': decimal.New(1, 6),
	'B': decimal.New(1, 9),
}

var hundred = decimal.NewFromInt(100)

// ParseTVL parses "$1.2B", "1,234,567.89" or "$12.5M" into USD cents (floored).
func ParseTVL(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s != "" && s != "$" && !tvlPattern.MatchString(s) {
		return nil, &domain.MalformedDataError{Field: "tvl", Value: raw, Err: syntaxError(s)}
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &domain.MalformedDataError{Field: "tvl", Value: raw, Err: errEmpty}
	}

	multiplier := decimal.NewFromInt(1)
	last := s[len(s)-1]
	if last >= 'a' && last <= 'z' {
		last -= 'a' - 'A'
	}
	if m, ok := tvlSuffixes[last]; ok {
		multiplier = m
		s = strings.TrimSpace(s[:len(s)-1])
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &domain.MalformedDataError{Field: "tvl", Value: raw, Err: err}
	}

	return d.Mul(multiplier).Mul(hundred).Floor().BigInt(), nil
}

// FormatTVL renders cents as "$1,234.56". ParseTVL(FormatTVL(x)) == x.
func FormatTVL(cents *big.Int) string {
	if cents == nil {
		return "$0.00"
	}
	fixed := decimal.NewFromBigInt(cents, -2).StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String() + "." + frac
}

// RiskScore computes the weighted risk in [MinRiskScore, MaxRiskScore].
// Higher APY, lower TVL and higher utilization all increase risk.
func RiskScore(apy, tvlUSD, utilization, tvlMinRiskUSD float64) float64 {
	if tvlMinRiskUSD <= 0 {
		tvlMinRiskUSD = DefaultTVLMinRiskUSD
	}
	apy = finiteOrZero(apy)
	tvlUSD = finiteOrZero(tvlUSD)
	utilization = finiteOrZero(utilization)

	apyRisk := math.Min(apy/APYRiskSaturation, 1)
	tvlRisk := math.Max(1-tvlUSD/tvlMinRiskUSD, 0)
	utilizationRisk := utilization / 100

	score := 10 * (APYRiskWeight*apyRisk + TVLRiskWeight*tvlRisk + UtilizationRiskWeight*utilizationRisk)
	return clamp(score, MinRiskScore, MaxRiskScore)
}

// ProjectAPY extrapolates current APY by pool utilization (percent).
func ProjectAPY(apy, utilization float64) float64 {
	return apy * (1 + ProjectedUtilizationBoost*utilization/100)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
