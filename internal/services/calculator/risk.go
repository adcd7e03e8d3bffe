package calculator

import (
	"fmt"
	"math"
	"slices"
)

type CorrelationResult struct {
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
}

// Correlation returns the Pearson coefficient of two equal-length series.
// A constant series gives NaN, which is labelled weak and negative.
func Correlation(x, y []float64) *CorrelationResult {
	if len(x) != len(y) || len(x) < 2 {
		return nil
	}
	mx, my := mean(x), mean(y)
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	r := cov / math.Sqrt(vx*vy)

	strength := "weak"
	switch abs := math.Abs(r); {
	case abs > 0.7:
		strength = "strong"
	case abs > 0.3:
		strength = "moderate"
	}
	direction := "negative"
	if r > 0 {
		direction = "positive"
	}

	return &CorrelationResult{Correlation: r, Strength: strength, Direction: direction}
}

type VolatilityResult struct {
	Volatility   float64 `json:"volatility"`
	Variance     float64 `json:"variance"`
	Annualized   float64 `json:"annualized"`
	Period       Period  `json:"period"`
	Observations int     `json:"observations"`
}

// Volatility is the sample standard deviation of returns scaled by the
// square root of the periods per year. Unknown periods scale by 1.
func Volatility(returns []float64, period string) *VolatilityResult {
	if len(returns) < 2 {
		return nil
	}
	p := NormalizePeriod(period)
	variance := sampleVariance(returns)
	sd := math.Sqrt(variance)

	return &VolatilityResult{
		Volatility:   sd,
		Variance:     variance,
		Annualized:   sd * math.Sqrt(PeriodsPerYear(p)),
		Period:       p,
		Observations: len(returns),
	}
}

type SharpeResult struct {
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MeanReturn   float64 `json:"mean_return"`
	ExcessReturn float64 `json:"excess_return"`
	Volatility   float64 `json:"volatility"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	Rating       string  `json:"rating"`
}

// SharpeRatio divides the mean excess return by the sample standard
// deviation. Excess return and volatility are reported in percent. A
// constant series gives ±Inf or NaN.
func SharpeRatio(returns []float64, riskFree float64) *SharpeResult {
	if len(returns) < 2 {
		return nil
	}
	m := mean(returns)
	sd := math.Sqrt(sampleVariance(returns))
	excess := m - riskFree/100
	ratio := excess / sd

	rating := "poor"
	switch {
	case ratio > 1:
		rating = "excellent"
	case ratio > 0.5:
		rating = "good"
	case ratio > 0:
		rating = "acceptable"
	}

	return &SharpeResult{
		SharpeRatio:  ratio,
		MeanReturn:   m * 100,
		ExcessReturn: excess * 100,
		Volatility:   sd * 100,
		RiskFreeRate: riskFree,
		Rating:       rating,
	}
}

type VaRResult struct {
	VaR            float64 `json:"var"`
	AdjustedVaR    float64 `json:"adjusted_var"`
	Confidence     float64 `json:"confidence"`
	TimeHorizon    float64 `json:"time_horizon"`
	Interpretation string  `json:"interpretation"`
}

// ValueAtRisk picks the historical loss quantile at the given confidence and
// scales it by √horizon. Outputs are in percent. The quantile index is
// clamped to the series bounds.
func ValueAtRisk(returns []float64, confidence, horizon float64) *VaRResult {
	n := len(returns)
	if n < 2 {
		return nil
	}
	sorted := slices.Clone(returns)
	slices.Sort(sorted)

	idx := int(math.Floor((100 - confidence) / 100 * float64(n)))
	idx = max(0, min(idx, n-1))

	v := math.Abs(sorted[idx])
	adjusted := v * math.Sqrt(horizon)

	return &VaRResult{
		VaR:         v * 100,
		AdjustedVaR: adjusted * 100,
		Confidence:  confidence,
		TimeHorizon: horizon,
		Interpretation: fmt.Sprintf("With %.0f%% confidence, the maximum loss over %g period(s) should not exceed %.2f%%",
			confidence, horizon, adjusted*100),
	}
}
