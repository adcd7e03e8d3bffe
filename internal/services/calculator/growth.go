package calculator

import "math"

type CompoundResult struct {
	Principal float64 `json:"principal" unit:"money"`
	Amount    float64 `json:"amount" unit:"money"`
	Interest  float64 `json:"interest" unit:"money"`
	Rate      float64 `json:"rate"`
	Years     float64 `json:"years"`
	Frequency int     `json:"frequency"`
}

// CompoundInterest computes principal·(1+rate/(100·n))^(n·years).
// A frequency below 1 compounds once a year.
func CompoundInterest(principal, rate, years float64, frequency int) CompoundResult {
	if frequency < 1 {
		frequency = 1
	}
	n := float64(frequency)
	amount := principal * math.Pow(1+rate/100/n, n*years)

	return CompoundResult{
		Principal: principal,
		Amount:    amount,
		Interest:  amount - principal,
		Rate:      rate,
		Years:     years,
		Frequency: frequency,
	}
}

type AnnualizedResult struct {
	InitialValue     float64 `json:"initial_value" unit:"money"`
	FinalValue       float64 `json:"final_value" unit:"money"`
	Years            float64 `json:"years"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
}

// AnnualizedReturn returns total and annualized return in percent.
// Absent if years ≤ 0 or initial ≤ 0.
func AnnualizedReturn(initial, final, years float64) *AnnualizedResult {
	if years <= 0 || initial <= 0 {
		return nil
	}
	total := (final - initial) / initial
	annualized := math.Pow(1+total, 1/years) - 1

	return &AnnualizedResult{
		InitialValue:     initial,
		FinalValue:       final,
		Years:            years,
		TotalReturn:      total * 100,
		AnnualizedReturn: annualized * 100,
	}
}

type InflationResult struct {
	OriginalAmount  float64 `json:"original_amount" unit:"money"`
	InflationRate   float64 `json:"inflation_rate"`
	Years           float64 `json:"years"`
	FutureValue     float64 `json:"future_value" unit:"money"`
	PurchasingPower float64 `json:"purchasing_power" unit:"money"`
	Loss            float64 `json:"loss" unit:"money"`
}

// InflationImpact returns the nominal amount needed in the future and the
// purchasing power left to amount today.
func InflationImpact(amount, rate, years float64) InflationResult {
	growth := math.Pow(1+rate/100, years)
	power := amount / growth

	return InflationResult{
		OriginalAmount:  amount,
		InflationRate:   rate,
		Years:           years,
		FutureValue:     amount * growth,
		PurchasingPower: power,
		Loss:            amount - power,
	}
}

type SavingsPlanResult struct {
	InitialAmount       float64 `json:"initial_amount" unit:"money"`
	MonthlyContribution float64 `json:"monthly_contribution" unit:"money"`
	AnnualRate          float64 `json:"annual_rate"`
	Years               float64 `json:"years"`
	FutureValue         float64 `json:"future_value" unit:"money"`
	TotalContributions  float64 `json:"total_contributions" unit:"money"`
	TotalInterest       float64 `json:"total_interest" unit:"money"`
	EffectiveRate       float64 `json:"effective_rate"`
}

// SavingsPlan compounds an initial amount monthly and adds a monthly
// contribution annuity. Absent if years ≤ 0 or the rate is negative.
func SavingsPlan(initial, monthly, annualRate, years float64) *SavingsPlanResult {
	if years <= 0 || annualRate < 0 {
		return nil
	}
	months := years * 12
	fv := futureValue(initial, monthly, annualRate/100/12, months)

	contributions := initial
	if monthly > 0 {
		contributions += monthly * months
	}
	interest := fv - contributions
	effective := 0.0
	if contributions > 0 {
		effective = interest / contributions * 100
	}

	return &SavingsPlanResult{
		InitialAmount:       initial,
		MonthlyContribution: monthly,
		AnnualRate:          annualRate,
		Years:               years,
		FutureValue:         fv,
		TotalContributions:  contributions,
		TotalInterest:       interest,
		EffectiveRate:       effective,
	}
}

// futureValue of a lump sum plus a monthly annuity; a zero rate degrades to plain sums.
func futureValue(initial, monthly, monthlyRate, months float64) float64 {
	growth := math.Pow(1+monthlyRate, months)
	fv := initial * growth
	if monthly > 0 {
		if monthlyRate > 0 {
			fv += monthly * (growth - 1) / monthlyRate
		} else {
			fv += monthly * months
		}
	}
	return fv
}

// safeWithdrawalRate is the yearly share of savings spendable in retirement.
const safeWithdrawalRate = 0.04

type RetirementResult struct {
	YearsToRetirement   int     `json:"years_to_retirement"`
	TotalSavings        float64 `json:"total_savings" unit:"money"`
	TotalContributed    float64 `json:"total_contributed" unit:"money"`
	TotalGrowth         float64 `json:"total_growth" unit:"money"`
	RealValue           float64 `json:"real_value" unit:"money"`
	MonthlyIncome       float64 `json:"monthly_income" unit:"money"`
	RealMonthlyIncome   float64 `json:"real_monthly_income" unit:"money"`
	ExpectedReturn      float64 `json:"expected_return"`
	InflationRate       float64 `json:"inflation_rate"`
	CurrentSavings      float64 `json:"current_savings" unit:"money"`
	MonthlyContribution float64 `json:"monthly_contribution" unit:"money"`
}

// Retirement projects savings at retirement, their value in today's money,
// and the monthly income they sustain at a 4% withdrawal rate.
// Absent if retirementAge is not after currentAge.
func Retirement(currentAge, retirementAge int, currentSavings, monthly, expectedReturn, inflation float64) *RetirementResult {
	years := retirementAge - currentAge
	if years <= 0 {
		return nil
	}
	months := float64(years * 12)
	total := futureValue(currentSavings, monthly, expectedReturn/100/12, months)
	contributed := currentSavings + monthly*months
	realValue := total / math.Pow(1+inflation/100, float64(years))

	return &RetirementResult{
		YearsToRetirement:   years,
		TotalSavings:        total,
		TotalContributed:    contributed,
		TotalGrowth:         total - contributed,
		RealValue:           realValue,
		MonthlyIncome:       total * safeWithdrawalRate / 12,
		RealMonthlyIncome:   realValue * safeWithdrawalRate / 12,
		ExpectedReturn:      expectedReturn,
		InflationRate:       inflation,
		CurrentSavings:      currentSavings,
		MonthlyContribution: monthly,
	}
}
