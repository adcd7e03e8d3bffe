package calculator

// DiversificationLevel is the qualitative bucket of a diversification index.
type DiversificationLevel int

const (
	DiversificationLow DiversificationLevel = iota
	DiversificationLimited
	DiversificationMedium
	DiversificationHigh
	DiversificationVeryHigh
)

var diversificationLabels = [...]string{"low", "limited", "medium", "high", "very high"}

func (l DiversificationLevel) String() string {
	if l < 0 || int(l) >= len(diversificationLabels) {
		return "unknown"
	}
	return diversificationLabels[l]
}

func (l DiversificationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func diversificationLevel(index float64) DiversificationLevel {
	switch {
	case index > 0.8:
		return DiversificationVeryHigh
	case index > 0.6:
		return DiversificationHigh
	case index > 0.4:
		return DiversificationMedium
	case index > 0.2:
		return DiversificationLimited
	default:
		return DiversificationLow
	}
}

type DiversificationResult struct {
	HHI                  float64              `json:"hhi"`
	EffectiveAssets      float64              `json:"effective_assets"`
	DiversificationIndex float64              `json:"diversification_index"`
	Level                DiversificationLevel `json:"level"`
}

// Diversification computes the Herfindahl-Hirschman index of percentage
// weights. The index is reported in percent; the level uses the fraction.
// Weights need not sum to 100. Absent for an empty vector.
func Diversification(weights []float64) *DiversificationResult {
	if len(weights) == 0 {
		return nil
	}
	hhi := 0.0
	for _, w := range weights {
		f := w / 100
		hhi += f * f
	}
	index := 1 - hhi

	return &DiversificationResult{
		HHI:                  hhi,
		EffectiveAssets:      1 / hhi,
		DiversificationIndex: index * 100,
		Level:                diversificationLevel(index),
	}
}

type TransactionCostResult struct {
	Amount     float64 `json:"amount" unit:"money"`
	Commission float64 `json:"commission" unit:"money"`
	Tax        float64 `json:"tax" unit:"money"`
	TotalCosts float64 `json:"total_costs" unit:"money"`
	NetAmount  float64 `json:"net_amount" unit:"money"`
	CostRatio  float64 `json:"cost_ratio"`
}

// TransactionCosts applies percentage commission and tax to amount.
// CostRatio is NaN for a zero amount.
func TransactionCosts(amount, commissionRate, taxRate float64) TransactionCostResult {
	commission := amount * commissionRate / 100
	tax := amount * taxRate / 100
	total := commission + tax

	return TransactionCostResult{
		Amount:     amount,
		Commission: commission,
		Tax:        tax,
		TotalCosts: total,
		NetAmount:  amount - total,
		CostRatio:  total / amount * 100,
	}
}

const defaultRiskLevel = "medium"

type AllocationInput struct {
	AssetClass string  `json:"asset_class"`
	Percentage float64 `json:"percentage"`
	RiskLevel  string  `json:"risk_level,omitempty"`
}

type AllocationBucket struct {
	AssetClass string  `json:"asset_class"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount" unit:"money"`
	RiskLevel  string  `json:"risk_level"`
}

type AllocationResult struct {
	Buckets        []AllocationBucket `json:"buckets"`
	TotalAllocated float64            `json:"total_allocated"`
	Unallocated    float64            `json:"unallocated"`
	IsValid        bool               `json:"is_valid"`
}

// AssetAllocation splits total across buckets. The split is invalid when
// the percentages add up to more than 100.
func AssetAllocation(total float64, items []AllocationInput) AllocationResult {
	buckets := make([]AllocationBucket, 0, len(items))
	allocated := 0.0
	for _, it := range items {
		risk := it.RiskLevel
		if risk == "" {
			risk = defaultRiskLevel
		}
		buckets = append(buckets, AllocationBucket{
			AssetClass: it.AssetClass,
			Percentage: it.Percentage,
			Amount:     total * it.Percentage / 100,
			RiskLevel:  risk,
		})
		allocated += it.Percentage
	}

	return AllocationResult{
		Buckets:        buckets,
		TotalAllocated: allocated,
		Unallocated:    100 - allocated,
		IsValid:        allocated <= 100,
	}
}

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// rebalanceThreshold is the share of total value that must move before a
// portfolio needs rebalancing.
const rebalanceThreshold = 0.05

type Holding struct {
	AssetClass string  `json:"asset_class"`
	Amount     float64 `json:"amount" unit:"money"`
}

type Target struct {
	AssetClass string  `json:"asset_class"`
	Percentage float64 `json:"percentage"`
}

type RebalanceAction struct {
	AssetClass    string  `json:"asset_class"`
	CurrentAmount float64 `json:"current_amount" unit:"money"`
	TargetAmount  float64 `json:"target_amount" unit:"money"`
	Difference    float64 `json:"difference" unit:"money"`
	Action        Action  `json:"action"`
	Amount        float64 `json:"amount" unit:"money"`
}

type RebalancingResult struct {
	Actions          []RebalanceAction `json:"actions"`
	TotalRebalancing float64           `json:"total_rebalancing" unit:"money"`
	NeedsRebalancing bool              `json:"needs_rebalancing"`
	TotalValue       float64           `json:"total_value" unit:"money"`
}

// Rebalancing computes buy/sell deltas for every holding that has a target.
// Holdings without a target are dropped. Output follows holdings order.
func Rebalancing(current []Holding, targets []Target, total float64) RebalancingResult {
	pct := make(map[string]float64, len(targets))
	for _, t := range targets {
		pct[t.AssetClass] = t.Percentage
	}

	actions := make([]RebalanceAction, 0, len(current))
	moved := 0.0
	for _, h := range current {
		p, ok := pct[h.AssetClass]
		if !ok {
			continue
		}
		target := total * p / 100
		diff := target - h.Amount
		action := ActionSell
		if diff > 0 {
			action = ActionBuy
		}
		amount := diff
		if amount < 0 {
			amount = -amount
		}
		actions = append(actions, RebalanceAction{
			AssetClass:    h.AssetClass,
			CurrentAmount: h.Amount,
			TargetAmount:  target,
			Difference:    diff,
			Action:        action,
			Amount:        amount,
		})
		moved += amount
	}

	return RebalancingResult{
		Actions:          actions,
		TotalRebalancing: moved,
		NeedsRebalancing: moved > total*rebalanceThreshold,
		TotalValue:       total,
	}
}
