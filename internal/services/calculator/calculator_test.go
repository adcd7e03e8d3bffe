package calculator

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

func TestCompoundInterest(t *testing.T) {
	res := CompoundInterest(1000, 5, 10, 1)
	assert.InDelta(t, 1628.894627, res.Amount, eps)
	assert.InDelta(t, 628.894627, res.Interest, eps)

	monthly := CompoundInterest(1000, 5, 10, 12)
	assert.Greater(t, monthly.Amount, res.Amount)

	def := CompoundInterest(1000, 5, 10, 0)
	assert.Equal(t, 1, def.Frequency)
	assert.InDelta(t, res.Amount, def.Amount, eps)
}

func TestAnnualizedReturn(t *testing.T) {
	res := AnnualizedReturn(1000, 1500, 5)
	require.NotNil(t, res)
	assert.InDelta(t, 50, res.TotalReturn, eps)
	assert.InDelta(t, 8.447177, res.AnnualizedReturn, 1e-5)

	assert.Nil(t, AnnualizedReturn(1000, 1500, 0))
	assert.Nil(t, AnnualizedReturn(0, 1500, 5))
	assert.Nil(t, AnnualizedReturn(-10, 1500, 5))
}

func TestInflationImpact(t *testing.T) {
	res := InflationImpact(1000, 2, 10)
	assert.InDelta(t, 1218.994419, res.FutureValue, eps)
	assert.InDelta(t, 820.348300, res.PurchasingPower, eps)
	assert.InDelta(t, 1000-res.PurchasingPower, res.Loss, eps)
}

func TestMortgage(t *testing.T) {
	res := Mortgage(200000, 3, 30, 12)
	require.NotNil(t, res)
	assert.InDelta(t, 843.208, res.Payment, 1e-3)
	assert.InDelta(t, res.Payment*360, res.TotalPayment, eps)
	assert.InDelta(t, res.TotalPayment-200000, res.TotalInterest, eps)

	zero := Mortgage(120000, 0, 10, 12)
	require.NotNil(t, zero)
	assert.InDelta(t, 1000, zero.Payment, eps)
	assert.InDelta(t, 0, zero.TotalInterest, eps)
	assert.False(t, math.IsNaN(zero.Payment))

	assert.Nil(t, Mortgage(1000, 3, 0, 12))
}

func TestAmortizationSchedule(t *testing.T) {
	rows := AmortizationSchedule(12000, 0, 1, 12, 0)
	require.Len(t, rows, 12)
	assert.InDelta(t, 1000, rows[0].Principal, eps)
	assert.InDelta(t, 0, rows[11].Balance, eps)

	rows = AmortizationSchedule(200000, 3, 30, 12, 12)
	require.Len(t, rows, 12)
	assert.InDelta(t, 500, rows[0].Interest, eps)
	assert.Less(t, rows[1].Interest, rows[0].Interest)
	assert.Equal(t, 12, rows[11].Period)

	assert.Nil(t, AmortizationSchedule(1000, 3, 0, 12, 12))
}

func TestDiversification(t *testing.T) {
	single := Diversification([]float64{100})
	require.NotNil(t, single)
	assert.InDelta(t, 1, single.HHI, eps)
	assert.InDelta(t, 1, single.EffectiveAssets, eps)
	assert.InDelta(t, 0, single.DiversificationIndex, eps)
	assert.Equal(t, DiversificationLow, single.Level)

	even := Diversification([]float64{25, 25, 25, 25})
	require.NotNil(t, even)
	assert.InDelta(t, 0.25, even.HHI, eps)
	assert.InDelta(t, 4, even.EffectiveAssets, eps)
	assert.InDelta(t, 75, even.DiversificationIndex, eps)
	assert.GreaterOrEqual(t, even.Level, DiversificationHigh)
	assert.Equal(t, "high", even.Level.String())

	assert.Nil(t, Diversification(nil))
}

func TestDiversificationLevelThresholds(t *testing.T) {
	cases := []struct {
		index float64
		want  string
	}{
		{0.9, "very high"},
		{0.8, "high"},
		{0.61, "high"},
		{0.5, "medium"},
		{0.3, "limited"},
		{0.2, "low"},
		{0, "low"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, diversificationLevel(tc.index).String(), "index %v", tc.index)
	}

	text, err := DiversificationVeryHigh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "very high", string(text))
}

func TestCorrelation(t *testing.T) {
	x := []float64{0.01, -0.02, 0.03, 0.005, -0.01}
	self := Correlation(x, x)
	require.NotNil(t, self)
	assert.InDelta(t, 1, self.Correlation, eps)
	assert.Equal(t, "strong", self.Strength)
	assert.Equal(t, "positive", self.Direction)

	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	inv := Correlation(x, neg)
	require.NotNil(t, inv)
	assert.InDelta(t, -1, inv.Correlation, eps)
	assert.Equal(t, "negative", inv.Direction)

	flat := Correlation([]float64{1, 1, 1}, []float64{1, 2, 3})
	require.NotNil(t, flat)
	assert.True(t, math.IsNaN(flat.Correlation))
	assert.Equal(t, "weak", flat.Strength)

	assert.Nil(t, Correlation(x, x[:4]))
	assert.Nil(t, Correlation([]float64{1}, []float64{1}))
}

func TestVolatility(t *testing.T) {
	res := Volatility([]float64{1, 2, 3, 4, 5}, "annual")
	require.NotNil(t, res)
	assert.InDelta(t, 1.581139, res.Volatility, eps)
	assert.InDelta(t, 2.5, res.Variance, eps)
	assert.InDelta(t, res.Volatility, res.Annualized, eps)

	daily := Volatility([]float64{1, 2, 3, 4, 5}, "daily")
	require.NotNil(t, daily)
	assert.InDelta(t, 1.581139*math.Sqrt(252), daily.Annualized, 1e-5)

	unknown := Volatility([]float64{1, 2, 3, 4, 5}, "fortnightly")
	require.NotNil(t, unknown)
	assert.Equal(t, Annual, unknown.Period)
	assert.InDelta(t, unknown.Volatility, unknown.Annualized, eps)

	assert.Nil(t, Volatility([]float64{0.1}, "daily"))
}

func TestSharpeRatio(t *testing.T) {
	returns := []float64{0.10, 0.12, 0.08, 0.11, 0.09}
	res := SharpeRatio(returns, 2)
	require.NotNil(t, res)
	sd := math.Sqrt(sampleVariance(returns))
	assert.InDelta(t, (0.10-0.02)/sd, res.SharpeRatio, eps)
	assert.InDelta(t, 8, res.ExcessReturn, eps)
	assert.InDelta(t, sd*100, res.Volatility, eps)
	assert.Equal(t, "excellent", res.Rating)

	poor := SharpeRatio([]float64{-0.01, 0.01, -0.02}, 2)
	require.NotNil(t, poor)
	assert.Equal(t, "poor", poor.Rating)

	flat := SharpeRatio([]float64{0.25, 0.25, 0.25}, 2)
	require.NotNil(t, flat)
	assert.True(t, math.IsInf(flat.SharpeRatio, 1))

	assert.Nil(t, SharpeRatio([]float64{0.05}, 2))
}

func TestValueAtRisk(t *testing.T) {
	returns := []float64{0.02, -0.05, 0.01, -0.03, 0.04, -0.01, 0.00, 0.03, -0.02, 0.01}
	orig := slices.Clone(returns)

	res := ValueAtRisk(returns, 90, 1)
	require.NotNil(t, res)
	// sorted[1] = -0.03
	assert.InDelta(t, 3, res.VaR, eps)
	assert.InDelta(t, 3, res.AdjustedVaR, eps)
	assert.Equal(t, orig, returns)

	scaled := ValueAtRisk(returns, 90, 4)
	require.NotNil(t, scaled)
	assert.InDelta(t, 6, scaled.AdjustedVaR, eps)

	low := ValueAtRisk([]float64{-0.1, 0.2}, 0, 1)
	require.NotNil(t, low)
	assert.InDelta(t, 20, low.VaR, eps)

	high := ValueAtRisk([]float64{-0.1, 0.2}, 150, 1)
	require.NotNil(t, high)
	assert.InDelta(t, 10, high.VaR, eps)

	assert.Nil(t, ValueAtRisk([]float64{0.1}, 95, 1))
}

func TestTransactionCosts(t *testing.T) {
	res := TransactionCosts(10000, 0.1, 0.26)
	assert.InDelta(t, 10, res.Commission, eps)
	assert.InDelta(t, 26, res.Tax, eps)
	assert.InDelta(t, 36, res.TotalCosts, eps)
	assert.InDelta(t, 9964, res.NetAmount, eps)
	assert.InDelta(t, 0.36, res.CostRatio, eps)
}

func TestAssetAllocation(t *testing.T) {
	res := AssetAllocation(10000, []AllocationInput{
		{AssetClass: "stocks", Percentage: 60, RiskLevel: "high"},
		{AssetClass: "bonds", Percentage: 30},
	})
	require.Len(t, res.Buckets, 2)
	assert.InDelta(t, 6000, res.Buckets[0].Amount, eps)
	assert.Equal(t, "medium", res.Buckets[1].RiskLevel)
	assert.InDelta(t, 90, res.TotalAllocated, eps)
	assert.InDelta(t, 10, res.Unallocated, eps)
	assert.True(t, res.IsValid)

	over := AssetAllocation(100, []AllocationInput{{AssetClass: "a", Percentage: 70}, {AssetClass: "b", Percentage: 40}})
	assert.False(t, over.IsValid)
}

func TestRebalancing(t *testing.T) {
	current := []Holding{{"stocks", 7000}, {"bonds", 3000}, {"gold", 500}}
	targets := []Target{{"stocks", 60}, {"bonds", 40}}

	res := Rebalancing(current, targets, 10000)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, ActionSell, res.Actions[0].Action)
	assert.InDelta(t, 1000, res.Actions[0].Amount, eps)
	assert.Equal(t, ActionBuy, res.Actions[1].Action)
	assert.InDelta(t, 2000, res.TotalRebalancing, eps)
	assert.True(t, res.NeedsRebalancing)

	small := Rebalancing([]Holding{{"stocks", 6100}, {"bonds", 3900}}, targets, 10000)
	assert.False(t, small.NeedsRebalancing)
}

func TestSavingsPlan(t *testing.T) {
	res := SavingsPlan(1000, 100, 0, 1)
	require.NotNil(t, res)
	assert.InDelta(t, 2200, res.FutureValue, eps)
	assert.InDelta(t, 2200, res.TotalContributions, eps)
	assert.InDelta(t, 0, res.EffectiveRate, eps)

	grown := SavingsPlan(1000, 100, 6, 10)
	require.NotNil(t, grown)
	assert.Greater(t, grown.TotalInterest, 0.0)
	assert.InDelta(t, 13000, grown.TotalContributions, eps)

	empty := SavingsPlan(0, 0, 5, 1)
	require.NotNil(t, empty)
	assert.Equal(t, 0.0, empty.EffectiveRate)

	assert.Nil(t, SavingsPlan(1000, 100, 5, 0))
	assert.Nil(t, SavingsPlan(1000, 100, -1, 5))
}

func TestRetirement(t *testing.T) {
	res := Retirement(30, 65, 10000, 500, 0, 0)
	require.NotNil(t, res)
	assert.Equal(t, 35, res.YearsToRetirement)
	assert.InDelta(t, 10000+500*420, res.TotalSavings, eps)
	assert.InDelta(t, 0, res.TotalGrowth, eps)
	assert.InDelta(t, res.TotalSavings, res.RealValue, eps)
	assert.InDelta(t, res.TotalSavings*0.04/12, res.MonthlyIncome, eps)

	infl := Retirement(30, 65, 10000, 500, 7, 2)
	require.NotNil(t, infl)
	assert.Less(t, infl.RealValue, infl.TotalSavings)
	assert.Less(t, infl.RealMonthlyIncome, infl.MonthlyIncome)

	assert.Nil(t, Retirement(65, 65, 0, 0, 5, 2))
}

func TestReturnsFromPrices(t *testing.T) {
	simple := SimpleReturns([]float64{100, 110, 99})
	require.Len(t, simple, 2)
	assert.InDelta(t, 0.1, simple[0], eps)
	assert.InDelta(t, -0.1, simple[1], eps)

	logs := LogReturns([]float64{100, 0, 100})
	assert.Equal(t, []float64{0, 0}, logs)

	assert.Nil(t, SimpleReturns([]float64{100}))
}

func TestPeriods(t *testing.T) {
	assert.Equal(t, 252.0, PeriodsPerYear(Daily))
	assert.Equal(t, 52.0, PeriodsPerYear(Weekly))
	assert.Equal(t, 12.0, PeriodsPerYear(Monthly))
	assert.Equal(t, 1.0, PeriodsPerYear(Annual))
	assert.Equal(t, Annual, NormalizePeriod(""))
	assert.Equal(t, Weekly, NormalizePeriod("weekly"))
}
