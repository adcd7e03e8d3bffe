package models

// Requests for calculator HTTP endpoints. Rates are percentages; return
// series are fractions. Pointer fields keep an explicit zero apart from an
// omitted value so the default only fills the latter.

type CompoundRequest struct {
	Principal float64 `json:"principal" validate:"gte=0"`
	Rate      float64 `json:"rate"`
	Years     float64 `json:"years" validate:"gte=0"`
	Frequency *int    `json:"frequency" default:"1" validate:"gte=1,lte=365"`
}

type AnnualizedRequest struct {
	Initial float64 `json:"initial"`
	Final   float64 `json:"final"`
	Years   float64 `json:"years"`
}

type InflationRequest struct {
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"`
	Years  float64 `json:"years" validate:"gte=0"`
}

type MortgageRequest struct {
	Principal       float64 `json:"principal" validate:"gt=0"`
	Rate            float64 `json:"rate" validate:"gte=0"`
	Years           float64 `json:"years"`
	PaymentsPerYear *int    `json:"payments_per_year" default:"12" validate:"gte=1,lte=365"`
}

type ScheduleRequest struct {
	MortgageRequest
	Limit *int `json:"limit" default:"12" validate:"gte=1,lte=1200"`
}

type DiversificationRequest struct {
	Weights []float64 `json:"weights" validate:"dive,gte=0"`
}

type CorrelationRequest struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type VolatilityRequest struct {
	Returns []float64 `json:"returns"`
	Period  string    `json:"period" default:"annual"`
}

type SharpeRequest struct {
	Returns  []float64 `json:"returns"`
	RiskFree *float64  `json:"risk_free" default:"2"`
}

type VaRRequest struct {
	Returns    []float64 `json:"returns"`
	Confidence *float64  `json:"confidence" default:"95" validate:"gt=0,lte=100"`
	Horizon    *float64  `json:"horizon" default:"1" validate:"gt=0"`
}

type TransactionCostRequest struct {
	Amount     float64  `json:"amount" validate:"gte=0"`
	Commission *float64 `json:"commission" default:"0.1" validate:"omitempty,gte=0"`
	Tax        *float64 `json:"tax" default:"0.26" validate:"omitempty,gte=0"`
}

type AllocationItem struct {
	AssetClass string  `json:"asset_class" validate:"required"`
	Percentage float64 `json:"percentage" validate:"gte=0"`
	RiskLevel  string  `json:"risk_level"`
}

type AllocationRequest struct {
	Total float64          `json:"total" validate:"gte=0"`
	Items []AllocationItem `json:"items" validate:"required,dive"`
}

type HoldingItem struct {
	AssetClass string  `json:"asset_class" validate:"required"`
	Amount     float64 `json:"amount"`
}

type TargetItem struct {
	AssetClass string  `json:"asset_class" validate:"required"`
	Percentage float64 `json:"percentage" validate:"gte=0"`
}

type RebalancingRequest struct {
	Current []HoldingItem `json:"current" validate:"dive"`
	Targets []TargetItem  `json:"targets" validate:"dive"`
	Total   float64       `json:"total" validate:"gte=0"`
}

type SavingsPlanRequest struct {
	Initial float64 `json:"initial" validate:"gte=0"`
	Monthly float64 `json:"monthly" validate:"gte=0"`
	Rate    float64 `json:"rate"`
	Years   float64 `json:"years"`
}

type RetirementRequest struct {
	CurrentAge     *int     `json:"current_age" default:"30" validate:"gte=0,lte=120"`
	RetirementAge  *int     `json:"retirement_age" default:"65" validate:"gte=0,lte=120"`
	CurrentSavings float64  `json:"current_savings" validate:"gte=0"`
	MonthlySavings float64  `json:"monthly_savings" validate:"gte=0"`
	ExpectedReturn *float64 `json:"expected_return" default:"6"`
	Inflation      *float64 `json:"inflation" default:"2"`
}

type ReturnsRequest struct {
	Prices []float64 `json:"prices"`
	Kind   string    `json:"kind" default:"simple" validate:"oneof=simple log"`
}
