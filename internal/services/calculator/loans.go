package calculator

import "math"

type MortgageResult struct {
	Principal       float64 `json:"principal" unit:"money"`
	AnnualRate      float64 `json:"annual_rate"`
	Years           float64 `json:"years"`
	PaymentsPerYear int     `json:"payments_per_year"`
	Payment         float64 `json:"payment" unit:"money"`
	TotalPayment    float64 `json:"total_payment" unit:"money"`
	TotalInterest   float64 `json:"total_interest" unit:"money"`
}

// Mortgage computes the level payment of an amortizing loan. paymentsPerYear
// below 1 means monthly. A zero periodic rate splits the principal evenly.
// Absent if the loan has no payments.
func Mortgage(principal, annualRate, years float64, paymentsPerYear int) *MortgageResult {
	if paymentsPerYear < 1 {
		paymentsPerYear = 12
	}
	r := annualRate / 100 / float64(paymentsPerYear)
	n := years * float64(paymentsPerYear)
	if n <= 0 {
		return nil
	}

	var payment float64
	if r == 0 {
		payment = principal / n
	} else {
		g := math.Pow(1+r, n)
		payment = principal * r * g / (g - 1)
	}
	total := payment * n

	return &MortgageResult{
		Principal:       principal,
		AnnualRate:      annualRate,
		Years:           years,
		PaymentsPerYear: paymentsPerYear,
		Payment:         payment,
		TotalPayment:    total,
		TotalInterest:   total - principal,
	}
}

type AmortizationRow struct {
	Period    int     `json:"period"`
	Payment   float64 `json:"payment" unit:"money"`
	Principal float64 `json:"principal" unit:"money"`
	Interest  float64 `json:"interest" unit:"money"`
	Balance   float64 `json:"balance" unit:"money"`
}

// AmortizationSchedule returns the first limit periods of the loan described
// by Mortgage; limit ≤ 0 returns every period. Absent when Mortgage is.
func AmortizationSchedule(principal, annualRate, years float64, paymentsPerYear, limit int) []AmortizationRow {
	m := Mortgage(principal, annualRate, years, paymentsPerYear)
	if m == nil {
		return nil
	}
	r := annualRate / 100 / float64(m.PaymentsPerYear)
	periods := int(math.Ceil(years * float64(m.PaymentsPerYear)))
	if limit > 0 && limit < periods {
		periods = limit
	}

	rows := make([]AmortizationRow, 0, periods)
	balance := principal
	for p := 1; p <= periods; p++ {
		interest := balance * r
		principalPart := m.Payment - interest
		balance -= principalPart
		rows = append(rows, AmortizationRow{
			Period:    p,
			Payment:   m.Payment,
			Principal: principalPart,
			Interest:  interest,
			Balance:   math.Max(0, balance),
		})
	}
	return rows
}
