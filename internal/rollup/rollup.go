// Package rollup aggregates order facts and order lines into per-entity marts.
package rollup

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/internal/calc"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// CustomerLTV groups facts by unique customer. Facts without a resolvable
// customer are dropped. Location comes from the customer's latest dated order.
func CustomerLTV(facts []types.OrderFact) []types.CustomerLTV {
	type acc struct {
		row     types.CustomerLTV
		orders  map[string]bool
		locFrom *time.Time
		located bool
	}
	byCustomer := make(map[string]*acc)

	for _, f := range facts {
		if f.CustomerUniqueID == "" {
			continue
		}
		a, ok := byCustomer[f.CustomerUniqueID]
		if !ok {
			a = &acc{
				row:    types.CustomerLTV{CustomerUniqueID: f.CustomerUniqueID},
				orders: make(map[string]bool),
			}
			byCustomer[f.CustomerUniqueID] = a
		}
		if a.orders[f.OrderID] {
			continue
		}
		a.orders[f.OrderID] = true
		a.row.TotalSpent = a.row.TotalSpent.Add(f.TotalItemValue)
		a.row.TotalPayment = a.row.TotalPayment.Add(f.TotalPayment)

		if p := f.PurchasedAt; p != nil {
			if a.row.FirstOrderDate == nil || p.Before(*a.row.FirstOrderDate) {
				a.row.FirstOrderDate = p
			}
			if a.row.LastOrderDate == nil || p.After(*a.row.LastOrderDate) {
				a.row.LastOrderDate = p
			}
		}
		if !a.located || (f.PurchasedAt != nil && (a.locFrom == nil || f.PurchasedAt.After(*a.locFrom))) {
			a.row.City, a.row.State = f.CustomerCity, f.CustomerState
			a.locFrom = f.PurchasedAt
			a.located = true
		}
	}

	out := make([]types.CustomerLTV, 0, len(byCustomer))
	for _, a := range byCustomer {
		a.row.TotalOrders = len(a.orders)
		if a.row.FirstOrderDate != nil {
			days := calc.ElapsedDays(*a.row.FirstOrderDate, *a.row.LastOrderDate)
			a.row.LifetimeDays = &days
		}
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerUniqueID < out[j].CustomerUniqueID })
	return out
}

// ProductPerformance aggregates lines with a known product, ordered by total
// sales descending then product id.
func ProductPerformance(lines []types.OrderLine) []types.ProductPerformance {
	type acc struct {
		row    types.ProductPerformance
		orders map[string]bool
	}
	byProduct := make(map[string]*acc)

	for _, l := range lines {
		if !l.ProductFound {
			continue
		}
		a, ok := byProduct[l.ProductID]
		if !ok {
			a = &acc{
				row:    types.ProductPerformance{ProductID: l.ProductID, CategoryName: l.CategoryName},
				orders: make(map[string]bool),
			}
			byProduct[l.ProductID] = a
		}
		a.orders[l.OrderID] = true
		a.row.UnitsSold++
		a.row.TotalSalesValue = a.row.TotalSalesValue.Add(l.Price)
		a.row.TotalFreightValue = a.row.TotalFreightValue.Add(l.FreightValue)
	}

	out := make([]types.ProductPerformance, 0, len(byProduct))
	for _, a := range byProduct {
		a.row.TotalOrders = len(a.orders)
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSalesValue.Cmp(out[j].TotalSalesValue); c != 0 {
			return c > 0
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// CategoryPerformance groups product performance by non-empty category.
func CategoryPerformance(products []types.ProductPerformance) []types.CategoryPerformance {
	byCategory := make(map[string]*types.CategoryPerformance)
	for _, p := range products {
		if p.CategoryName == "" {
			continue
		}
		c, ok := byCategory[p.CategoryName]
		if !ok {
			c = &types.CategoryPerformance{CategoryName: p.CategoryName}
			byCategory[p.CategoryName] = c
		}
		c.ProductCount++
		c.TotalSales = c.TotalSales.Add(p.TotalSalesValue)
		c.TotalOrders += p.TotalOrders
	}

	out := make([]types.CategoryPerformance, 0, len(byCategory))
	for _, c := range byCategory {
		c.AvgSalesPerProduct = c.TotalSales.DivRound(decimal.NewFromInt(int64(c.ProductCount)), 2)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSales.Cmp(out[j].TotalSales); c != 0 {
			return c > 0
		}
		return out[i].CategoryName < out[j].CategoryName
	})
	return out
}

// SellerPerformance aggregates lines of delivered orders with a known seller.
// An order is on time when it arrived on or before its estimated calendar date.
func SellerPerformance(lines []types.OrderLine) []types.SellerPerformance {
	type acc struct {
		row       types.SellerPerformance
		delivered map[string]bool
		measured  map[string]bool
		onTime    map[string]bool
	}
	bySeller := make(map[string]*acc)

	for _, l := range lines {
		if !l.SellerFound || l.Status != types.OrderDelivered {
			continue
		}
		a, ok := bySeller[l.SellerID]
		if !ok {
			a = &acc{
				row:       types.SellerPerformance{SellerID: l.SellerID, State: l.SellerState},
				delivered: make(map[string]bool),
				measured:  make(map[string]bool),
				onTime:    make(map[string]bool),
			}
			bySeller[l.SellerID] = a
		}
		a.delivered[l.OrderID] = true
		a.row.TotalRevenue = a.row.TotalRevenue.Add(l.Price)
		if l.DeliveredAt != nil && l.EstimatedDelivery != nil {
			a.measured[l.OrderID] = true
			if delayDays(l.DeliveredAt, l.EstimatedDelivery) <= 0 {
				a.onTime[l.OrderID] = true
			}
		}
	}

	out := make([]types.SellerPerformance, 0, len(bySeller))
	for _, a := range bySeller {
		a.row.DeliveredOrders = len(a.delivered)
		a.row.OnTimeOrders = len(a.onTime)
		a.row.OnTimeRate = calc.IntRatio(len(a.onTime), len(a.measured), 4)
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out
}

// StatePerformance aggregates facts by customer state, ordered by total sales
// descending. Facts without a state are dropped.
func StatePerformance(facts []types.OrderFact) []types.StatePerformance {
	type acc struct {
		row       types.StatePerformance
		cities    map[string]bool
		customers map[string]bool
		orders    map[string]bool
	}
	byState := make(map[string]*acc)

	for _, f := range facts {
		if f.CustomerState == "" {
			continue
		}
		a, ok := byState[f.CustomerState]
		if !ok {
			a = &acc{
				row:       types.StatePerformance{State: f.CustomerState},
				cities:    make(map[string]bool),
				customers: make(map[string]bool),
				orders:    make(map[string]bool),
			}
			byState[f.CustomerState] = a
		}
		if a.orders[f.OrderID] {
			continue
		}
		a.orders[f.OrderID] = true
		if f.CustomerCity != "" {
			a.cities[f.CustomerCity] = true
		}
		a.customers[f.CustomerUniqueID] = true
		a.row.TotalSales = a.row.TotalSales.Add(f.TotalItemValue)
	}

	out := make([]types.StatePerformance, 0, len(byState))
	for _, a := range byState {
		a.row.CitiesCount = len(a.cities)
		a.row.TotalOrders = len(a.orders)
		a.row.UniqueCustomers = len(a.customers)
		a.row.AvgOrderValue = calc.Ratio(a.row.TotalSales, decimal.NewFromInt(int64(a.row.TotalOrders)), 2)
		a.row.AvgCustomerValue = calc.Ratio(a.row.TotalSales, decimal.NewFromInt(int64(a.row.UniqueCustomers)), 2)
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSales.Cmp(out[j].TotalSales); c != 0 {
			return c > 0
		}
		return out[i].State < out[j].State
	})
	return out
}

// DeliveryPerformance aggregates delivered facts that carry both a delivery
// and an estimated date, grouped by customer state.
func DeliveryPerformance(facts []types.OrderFact) []types.DeliveryPerformance {
	type acc struct {
		actual    []int
		estimated []int
		delay     []int
		onTime    int
	}
	byState := make(map[string]*acc)

	for _, f := range facts {
		if f.Status != types.OrderDelivered || f.CustomerState == "" ||
			f.DeliveredAt == nil || f.EstimatedDelivery == nil {
			continue
		}
		a, ok := byState[f.CustomerState]
		if !ok {
			a = &acc{}
			byState[f.CustomerState] = a
		}
		delay := delayDays(f.DeliveredAt, f.EstimatedDelivery)
		a.delay = append(a.delay, delay)
		if delay <= 0 {
			a.onTime++
		}
		if f.PurchasedAt != nil {
			a.actual = append(a.actual, calc.CalendarDays(*f.PurchasedAt, *f.DeliveredAt))
			a.estimated = append(a.estimated, calc.CalendarDays(*f.PurchasedAt, *f.EstimatedDelivery))
		}
	}

	out := make([]types.DeliveryPerformance, 0, len(byState))
	for state, a := range byState {
		out = append(out, types.DeliveryPerformance{
			State:            state,
			DeliveredOrders:  len(a.delay),
			AvgActualDays:    calc.Mean(a.actual, 2),
			AvgEstimatedDays: calc.Mean(a.estimated, 2),
			AvgDelayDays:     calc.Mean(a.delay, 2),
			OnTimeDeliveries: a.onTime,
			OnTimeRate:       calc.IntRatio(a.onTime, len(a.delay), 4),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

// delayDays is positive when delivery came after the estimate.
func delayDays(delivered, estimated *time.Time) int {
	return calc.CalendarDays(*estimated, *delivered)
}
