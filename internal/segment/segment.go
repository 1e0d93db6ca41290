// Package segment scores customers on recency, frequency and monetary value,
// flags churn and assigns a segment label.
package segment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/internal/calc"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// DefaultChurnThresholdDays is used when Params carries a zero threshold.
const DefaultChurnThresholdDays = 90

var highValue = decimal.NewFromInt(1000)

// Params are the computation parameters of a scoring pass.
type Params struct {
	EvaluatedAt        time.Time
	ChurnThresholdDays int
}

// Score emits one row per unique customer found in the staged customer
// dimension or in the facts, ordered by customer unique id.
func Score(customers []types.Customer, facts []types.OrderFact, p Params) []types.CustomerRFM {
	threshold := p.ChurnThresholdDays
	if threshold == 0 {
		threshold = DefaultChurnThresholdDays
	}
	evaluatedAt := p.EvaluatedAt.UTC()

	type acc struct {
		orders   map[string]bool
		monetary decimal.Decimal
		spent    decimal.Decimal
		last     *time.Time
	}
	byCustomer := make(map[string]*acc)
	get := func(id string) *acc {
		a, ok := byCustomer[id]
		if !ok {
			a = &acc{orders: make(map[string]bool)}
			byCustomer[id] = a
		}
		return a
	}

	for _, c := range customers {
		if c.CustomerUniqueID != "" {
			get(c.CustomerUniqueID)
		}
	}
	for _, f := range facts {
		if f.CustomerUniqueID == "" {
			continue
		}
		a := get(f.CustomerUniqueID)
		if a.orders[f.OrderID] {
			continue
		}
		a.orders[f.OrderID] = true
		a.monetary = a.monetary.Add(f.TotalPayment)
		a.spent = a.spent.Add(f.TotalItemValue)
		if f.PurchasedAt != nil && (a.last == nil || f.PurchasedAt.After(*a.last)) {
			a.last = f.PurchasedAt
		}
	}

	out := make([]types.CustomerRFM, 0, len(byCustomer))
	for id, a := range byCustomer {
		row := types.CustomerRFM{
			CustomerUniqueID: id,
			Frequency:        len(a.orders),
			Monetary:         a.monetary.Round(2),
			TotalSpent:       a.spent,
			EvaluatedAt:      evaluatedAt,
		}
		if a.last != nil {
			r := calc.ElapsedDays(*a.last, evaluatedAt)
			row.RecencyDays = &r
		}
		row.Churned = IsChurned(row.Frequency, row.RecencyDays, threshold)
		switch {
		case row.Frequency == 0:
			row.Activity = types.ActivityNeverActive
		case row.Churned:
			row.Activity = types.ActivityChurned
		default:
			row.Activity = types.ActivityActive
		}
		row.Segment = Classify(row.Frequency, row.RecencyDays, row.TotalSpent)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerUniqueID < out[j].CustomerUniqueID })
	return out
}

// IsChurned is true for customers with at least one order whose recency is
// strictly greater than the threshold. Unknown recency is never churned.
func IsChurned(frequency int, recencyDays *int, thresholdDays int) bool {
	return frequency > 0 && recencyDays != nil && *recencyDays > thresholdDays
}

// Classify assigns the segment label. Rules are evaluated in order and an
// unknown recency satisfies no recency condition.
func Classify(frequency int, recencyDays *int, spent decimal.Decimal) types.Segment {
	if frequency == 0 {
		return types.SegmentNeverActive
	}
	recentWithin := func(days int) bool { return recencyDays != nil && *recencyDays < days }
	switch {
	case spent.GreaterThan(highValue) && recentWithin(90):
		return types.SegmentHighValueActive
	case spent.GreaterThan(highValue):
		return types.SegmentHighValueAtRisk
	case frequency >= 3 && recentWithin(180):
		return types.SegmentLoyal
	case recencyDays != nil && *recencyDays > 180:
		return types.SegmentChurned
	case frequency == 1:
		return types.SegmentOneTime
	default:
		return types.SegmentRegular
	}
}
