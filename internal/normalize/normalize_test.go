package normalize

import (
	"errors"
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

func TestParseRayAPY(t *testing.T) {
	apy, err := ParseRayAPY("40000000000000000000000000")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, apy, 1e-12)

	apy, err = ParseRayAPY("0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, apy)

	_, err = ParseRayAPY("-1")
	assert.Error(t, err)

	_, err = ParseRayAPY("abc")
	var malformed *domain.MalformedDataError
	assert.True(t, errors.As(err, &malformed))

	_, err = ParseRayAPY("4e25")
	assert.ErrorAs(t, err, &malformed)
}

func TestParseRejectsExponentNotation(t *testing.T) {
	const huge = "1e99999999"
	var malformed *domain.MalformedDataError

	_, err := ParseTVL(huge)
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "tvl", malformed.Field)

	_, err = ParsePercent(huge)
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "percent", malformed.Field)

	_, err = ParseRayAPY(huge)
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "rate", malformed.Field)

	n := NewNormalizer(zap.NewNop(), 0)
	out := n.NormalizeBatch([]domain.RawRecord{
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainBase, Symbol: "USDC", Rate: "3%", TVL: huge},
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainBase, Symbol: "USDC", Rate: "3%", TVL: "$2M"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "200000000", out[0].TVL.String())
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"4.04%", 4.04, false},
		{" 12% ", 12, false},
		{"<0.01%", 0.01, false},
		{"3.5", 3.5, false},
		{"1,000.5%", 1000.5, false},
		{"", 0, true},
		{"%", 0, true},
		{"n/a", 0, true},
		{"-2%", 0, true},
		{"1e99999999", 0, true},
		{"4.04e2%", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePercent(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseTVL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"$1.2B", "120000000000", false},
		{"$12.5M", "1250000000", false},
		{"1,234,567.891", "123456789", false},
		{"$950K", "95000000", false},
		{"2b", "200000000000", false},
		{"0", "0", false},
		{"", "", true},
		{"$", "", true},
		{"B", "", true},
		{"$1.2X", "", true},
		{"-5M", "", true},
		{"1e99999999", "", true},
		{"$1.5E9", "", true},
		{"0x10", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTVL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatTVLRoundTrip(t *testing.T) {
	inputs := []string{"$1.2B", "$12.5M", "$0.99", "1,234,567.89", "$7", "123456789012345.67"}
	for _, in := range inputs {
		first, err := ParseTVL(in)
		require.NoError(t, err)

		formatted := FormatTVL(first)
		second, err := ParseTVL(formatted)
		require.NoError(t, err, "re-parse %s", formatted)
		assert.Equal(t, 0, first.Cmp(second), "%s -> %s", in, formatted)
	}

	assert.Equal(t, "$1,200,000,000.00", FormatTVL(big.NewInt(120000000000)))
	assert.Equal(t, "$0.05", FormatTVL(big.NewInt(5)))
}

func TestRiskScoreFormula(t *testing.T) {
	// apy 10% -> 0.25, tvl $500M -> 0.15, utilization 50% -> 0.1
	score := RiskScore(10, 500_000_000, 50, DefaultTVLMinRiskUSD)
	assert.InDelta(t, 5.0, score, 1e-9)

	// Saturated APY, no TVL, full utilization -> 10
	assert.InDelta(t, 10.0, RiskScore(50, 0, 100, DefaultTVLMinRiskUSD), 1e-9)

	// Everything safe -> floor
	assert.InDelta(t, MinRiskScore, RiskScore(0, 5e9, 0, DefaultTVLMinRiskUSD), 1e-9)

	// Alternate min-risk scale
	assert.InDelta(t, 0.0+MinRiskScore, RiskScore(0, 1e8, 0, 1e8), 1e-9)
}

func TestRiskScoreBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	extremes := []float64{0, 1e-12, 1, 20, 1e6, 1e18, math.MaxFloat64}

	check := func(apy, tvl, util float64) {
		score := RiskScore(apy, tvl, util, DefaultTVLMinRiskUSD)
		if score < MinRiskScore || score > MaxRiskScore {
			t.Fatalf("score %v out of range for apy=%v tvl=%v util=%v", score, apy, tvl, util)
		}
	}

	for _, a := range extremes {
		for _, v := range extremes {
			for _, u := range extremes {
				check(a, v, u)
			}
		}
	}

	for i := 0; i < 5000; i++ {
		check(rng.Float64()*200, rng.Float64()*1e10, rng.Float64()*150)
	}
}

func TestNormalizeRayRecord(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), 0)
	opp, err := n.Normalize(domain.RawRecord{
		Protocol:    domain.ProtocolAave,
		Chain:       domain.ChainEthereum,
		Symbol:      "usdc",
		Rate:        "40000000000000000000000000",
		Encoding:    domain.RateRay,
		TVL:         "$1.2B",
		Utilization: "80",
		PoolAddress: "0xpool",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AssetUSDC, opp.Asset)
	assert.InDelta(t, 4.0, opp.CurrentAPY, 1e-12)
	assert.Equal(t, "120000000000", opp.TVL.String())
	assert.Equal(t, domain.SourceLive, opp.Source)
	require.NotNil(t, opp.ProjectedAPY)
	assert.InDelta(t, 4.0*1.08, *opp.ProjectedAPY, 1e-9)

	// apy 0.2*0.5 + tvl 0 + util 0.8*0.2 = 0.26 -> 2.6
	assert.InDelta(t, 2.6, opp.RiskScore, 1e-9)
}

func TestNormalizeBatchSkipsMalformed(t *testing.T) {
	n := NewNormalizer(zap.NewNop(), 0)
	records := []domain.RawRecord{
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Symbol: "DAI", Rate: "3.1%", TVL: "$10M"},
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Symbol: "USDC", Rate: "bogus", TVL: "$10M"},
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Symbol: "USDT", Rate: "2%", TVL: "lots"},
		{Protocol: domain.ProtocolCurve, Chain: domain.ChainPolygon, Symbol: "USDT", Rate: "2%", TVL: "$1M", Source: domain.SourceFallback},
	}

	out := n.NormalizeBatch(records)
	require.Len(t, out, 2)
	assert.Equal(t, domain.AssetDAI, out[0].Asset)
	assert.Nil(t, out[0].ProjectedAPY)
	assert.Equal(t, domain.SourceFallback, out[1].Source)
	for _, o := range out {
		assert.GreaterOrEqual(t, o.CurrentAPY, 0.0)
	}
}
