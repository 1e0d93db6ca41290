// Package timeseries derives monthly sales trend, buyer split, cohort matrix
// and retention from bucketed order facts. Facts without a month bucket are
// excluded from every series here.
package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/internal/calc"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// MonthlyTrend totals item value per month in ascending month order. Growth is
// measured against the previous calendar month and is null when that month has
// no orders or a zero total, so a gap month breaks the comparison.
func MonthlyTrend(facts []types.OrderFact) ([]types.MonthlyTrend, error) {
	type acc struct {
		sales  decimal.Decimal
		orders map[string]bool
	}
	byMonth := make(map[string]*acc)
	for _, f := range facts {
		if !f.HasMonth() {
			continue
		}
		a, ok := byMonth[f.Month]
		if !ok {
			a = &acc{orders: make(map[string]bool)}
			byMonth[f.Month] = a
		}
		if a.orders[f.OrderID] {
			continue
		}
		a.orders[f.OrderID] = true
		a.sales = a.sales.Add(f.TotalItemValue)
	}

	months := sortedKeys(byMonth)
	out := make([]types.MonthlyTrend, 0, len(months))
	for _, m := range months {
		t, err := parseMonth(m)
		if err != nil {
			return nil, err
		}
		a := byMonth[m]
		row := types.MonthlyTrend{
			Month:         m,
			Year:          t.Year(),
			Quarter:       fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1),
			TotalOrders:   len(a.orders),
			TotalSales:    a.sales,
			AvgOrderValue: calc.Ratio(a.sales, decimal.NewFromInt(int64(len(a.orders))), 2),
		}
		if prev, ok := byMonth[t.AddDate(0, -1, 0).Format(types.MonthLayout)]; ok {
			row.GrowthPct = calc.Growth(prev.sales, a.sales)
		}
		out = append(out, row)
	}
	return out, nil
}

// BuyerSplit counts, per active month, customers buying for the first time and
// customers who bought in an earlier month.
func BuyerSplit(facts []types.OrderFact) []types.BuyerSplit {
	act := activity(facts)
	byMonth := make(map[string]*types.BuyerSplit)
	for _, months := range act {
		first := months[0]
		for _, m := range months {
			row, ok := byMonth[m]
			if !ok {
				row = &types.BuyerSplit{Month: m}
				byMonth[m] = row
			}
			if m == first {
				row.FirstTimeCount++
			} else {
				row.RepeatCount++
			}
		}
	}

	out := make([]types.BuyerSplit, 0, len(byMonth))
	for _, m := range sortedKeys(byMonth) {
		out = append(out, *byMonth[m])
	}
	return out
}

// Cohorts returns the populated cells of the cohort matrix, ordered by cohort
// then observation month. Every cell has observation month >= cohort month.
func Cohorts(facts []types.OrderFact) ([]types.CohortCell, error) {
	type cellKey struct{ cohort, observed string }
	counts := make(map[cellKey]int)
	for _, months := range activity(facts) {
		for _, m := range months {
			counts[cellKey{months[0], m}]++
		}
	}

	out := make([]types.CohortCell, 0, len(counts))
	for k, n := range counts {
		offset, err := monthOffset(k.cohort, k.observed)
		if err != nil {
			return nil, err
		}
		out = append(out, types.CohortCell{
			CohortMonth:      k.cohort,
			ObservationMonth: k.observed,
			MonthOffset:      offset,
			Customers:        n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CohortMonth != out[j].CohortMonth {
			return out[i].CohortMonth < out[j].CohortMonth
		}
		return out[i].ObservationMonth < out[j].ObservationMonth
	})
	return out, nil
}

// Retention reports, for every bucketed month, the share of active customers
// who were not new that month, to 4 places. The rate is null when no
// resolvable customer was active.
func Retention(facts []types.OrderFact) []types.RetentionRow {
	rows := make(map[string]*types.RetentionRow)
	for _, f := range facts {
		if f.HasMonth() && rows[f.Month] == nil {
			rows[f.Month] = &types.RetentionRow{Month: f.Month}
		}
	}
	for _, months := range activity(facts) {
		for _, m := range months {
			r := rows[m]
			r.ActiveCustomers++
			if m == months[0] {
				r.NewCustomers++
			} else {
				r.ReturningCustomers++
			}
		}
	}

	out := make([]types.RetentionRow, 0, len(rows))
	for _, m := range sortedKeys(rows) {
		r := rows[m]
		r.RetentionRate = calc.IntRatio(r.ActiveCustomers-r.NewCustomers, r.ActiveCustomers, 4)
		out = append(out, *r)
	}
	return out
}

// activity maps each resolvable customer to their distinct active months,
// ascending. The first element is the customer's cohort.
func activity(facts []types.OrderFact) map[string][]string {
	seen := make(map[string]map[string]bool)
	for _, f := range facts {
		if !f.HasMonth() || f.CustomerUniqueID == "" {
			continue
		}
		s, ok := seen[f.CustomerUniqueID]
		if !ok {
			s = make(map[string]bool)
			seen[f.CustomerUniqueID] = s
		}
		s[f.Month] = true
	}

	out := make(map[string][]string, len(seen))
	for id, s := range seen {
		out[id] = sortedKeys(s)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseMonth(m string) (time.Time, error) {
	t, err := time.Parse(types.MonthLayout, m)
	if err != nil {
		return time.Time{}, fmt.Errorf("month bucket %q: %w", m, err)
	}
	return t, nil
}

func monthOffset(from, to string) (int, error) {
	a, err := parseMonth(from)
	if err != nil {
		return 0, err
	}
	b, err := parseMonth(to)
	if err != nil {
		return 0, err
	}
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()), nil
}
