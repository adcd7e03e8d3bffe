package calculator

import "math"

// Period is the sampling interval of a return series.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Annual  Period = "annual"
)

// IsValidPeriod returns true if p is a supported period.
func IsValidPeriod(p Period) bool {
	switch p {
	case Daily, Weekly, Monthly, Annual:
		return true
	default:
		return false
	}
}

// NormalizePeriod converts a raw tag to a valid period; unknown tags are Annual.
func NormalizePeriod(s string) Period {
	p := Period(s)
	if IsValidPeriod(p) {
		return p
	}
	return Annual
}

// PeriodsPerYear returns the annualizing count for a period.
func PeriodsPerYear(p Period) float64 {
	switch p {
	case Daily:
		return 252
	case Weekly:
		return 52
	case Monthly:
		return 12
	default:
		return 1
	}
}

// SimpleReturns computes r_t = P_t / P_{t-1} − 1.
// It returns a slice of length len(prices)-1, or nil if insufficient data.
// A step with a non-positive price yields 0.
func SimpleReturns(prices []float64) []float64 {
	return stepReturns(prices, func(prev, cur float64) float64 { return cur/prev - 1 })
}

// LogReturns computes r_t = ln(P_t / P_{t-1}) with the same rules as SimpleReturns.
func LogReturns(prices []float64) []float64 {
	return stepReturns(prices, func(prev, cur float64) float64 { return math.Log(cur / prev) })
}

func stepReturns(prices []float64, f func(prev, cur float64) float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, f(prev, cur))
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance uses the n−1 denominator. Callers guarantee len(xs) ≥ 2.
func sampleVariance(xs []float64) float64 {
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}
