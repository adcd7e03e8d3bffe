package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/services/calculator"
	xhttp "FinPWA/pkg/http"
)

// ErrInsufficientData is returned when well-formed input yields no result.
var ErrInsufficientData = errors.New("insufficient data")

// InputError carries the validation failures of a calculator request.
type InputError struct {
	Details []xhttp.ValidationError
}

func (e *InputError) Error() string {
	msgs := make([]string, len(e.Details))
	for i, d := range e.Details {
		msgs[i] = d.Message
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

// Calculation binds one calculator to its request type.
type Calculation struct {
	Name string
	// New returns a pointer to an empty request.
	New func() any
	// Run computes the result; a nil pointer or nil slice means no result.
	Run func(req any) any
}

func calc[R any](name string, run func(*R) any) Calculation {
	return Calculation{
		Name: name,
		New:  func() any { return new(R) },
		Run:  func(req any) any { return run(req.(*R)) },
	}
}

// Calculations lists every calculator exposed over HTTP and on the command line.
func Calculations() []Calculation {
	return []Calculation{
		calc("compound", func(r *models.CompoundRequest) any {
			return calculator.CompoundInterest(r.Principal, r.Rate, r.Years, *r.Frequency)
		}),
		calc("annualized-return", func(r *models.AnnualizedRequest) any {
			return calculator.AnnualizedReturn(r.Initial, r.Final, r.Years)
		}),
		calc("inflation", func(r *models.InflationRequest) any {
			return calculator.InflationImpact(r.Amount, r.Rate, r.Years)
		}),
		calc("mortgage", func(r *models.MortgageRequest) any {
			return calculator.Mortgage(r.Principal, r.Rate, r.Years, *r.PaymentsPerYear)
		}),
		calc("amortization", func(r *models.ScheduleRequest) any {
			return calculator.AmortizationSchedule(r.Principal, r.Rate, r.Years, *r.PaymentsPerYear, *r.Limit)
		}),
		calc("diversification", func(r *models.DiversificationRequest) any {
			return calculator.Diversification(r.Weights)
		}),
		calc("correlation", func(r *models.CorrelationRequest) any {
			return calculator.Correlation(r.X, r.Y)
		}),
		calc("volatility", func(r *models.VolatilityRequest) any {
			return calculator.Volatility(r.Returns, r.Period)
		}),
		calc("sharpe", func(r *models.SharpeRequest) any {
			return calculator.SharpeRatio(r.Returns, *r.RiskFree)
		}),
		calc("var", func(r *models.VaRRequest) any {
			return calculator.ValueAtRisk(r.Returns, *r.Confidence, *r.Horizon)
		}),
		calc("transaction-costs", func(r *models.TransactionCostRequest) any {
			return calculator.TransactionCosts(r.Amount, *r.Commission, *r.Tax)
		}),
		calc("allocation", func(r *models.AllocationRequest) any {
			items := make([]calculator.AllocationInput, len(r.Items))
			for i, it := range r.Items {
				items[i] = calculator.AllocationInput{AssetClass: it.AssetClass, Percentage: it.Percentage, RiskLevel: it.RiskLevel}
			}
			return calculator.AssetAllocation(r.Total, items)
		}),
		calc("rebalancing", func(r *models.RebalancingRequest) any {
			current := make([]calculator.Holding, len(r.Current))
			for i, h := range r.Current {
				current[i] = calculator.Holding{AssetClass: h.AssetClass, Amount: h.Amount}
			}
			targets := make([]calculator.Target, len(r.Targets))
			for i, t := range r.Targets {
				targets[i] = calculator.Target{AssetClass: t.AssetClass, Percentage: t.Percentage}
			}
			return calculator.Rebalancing(current, targets, r.Total)
		}),
		calc("savings-plan", func(r *models.SavingsPlanRequest) any {
			return calculator.SavingsPlan(r.Initial, r.Monthly, r.Rate, r.Years)
		}),
		calc("retirement", func(r *models.RetirementRequest) any {
			return calculator.Retirement(*r.CurrentAge, *r.RetirementAge, r.CurrentSavings, r.MonthlySavings, *r.ExpectedReturn, *r.Inflation)
		}),
		calc("returns", func(r *models.ReturnsRequest) any {
			if r.Kind == "log" {
				return calculator.LogReturns(r.Prices)
			}
			return calculator.SimpleReturns(r.Prices)
		}),
	}
}

// FindCalculation looks a calculator up by name.
func FindCalculation(name string) (Calculation, bool) {
	for _, c := range Calculations() {
		if c.Name == name {
			return c, true
		}
	}
	return Calculation{}, false
}

// Evaluate decodes a JSON request, applies defaults, validates and runs the
// calculator. Empty input runs it on defaults alone.
func (c Calculation) Evaluate(ctx context.Context, input []byte) (any, error) {
	req := c.New()
	if len(strings.TrimSpace(string(input))) > 0 {
		if err := json.Unmarshal(input, req); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", c.Name, err)
		}
	}
	if details := xhttp.ValidateRequest(ctx, req); details != nil {
		return nil, &InputError{Details: details}
	}
	result := c.Run(req)
	if Absent(result) {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrInsufficientData)
	}
	return result, nil
}
