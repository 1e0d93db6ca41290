// Package facts assembles the order fact table and the joined order lines
// that every downstream rollup reads.
package facts

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// MonthBucket returns the YYYY-MM bucket of t, or "" when t is nil.
func MonthBucket(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(types.MonthLayout)
}

// Assemble produces one OrderFact per staged order. Items and payments whose
// order does not exist are dropped. Output is sorted by order id.
func Assemble(snap *types.Snapshot) []types.OrderFact {
	customers := make(map[string]types.Customer, len(snap.Customers))
	for _, c := range snap.Customers {
		customers[c.CustomerID] = c
	}

	type totals struct {
		items   int
		value   decimal.Decimal
		freight decimal.Decimal
		payment decimal.Decimal
	}
	byOrder := make(map[string]*totals, len(snap.Orders))
	for _, o := range snap.Orders {
		byOrder[o.OrderID] = &totals{}
	}
	for _, it := range snap.OrderItems {
		t, ok := byOrder[it.OrderID]
		if !ok {
			continue
		}
		t.items++
		t.value = t.value.Add(it.Price)
		t.freight = t.freight.Add(it.FreightValue)
	}
	for _, p := range snap.Payments {
		t, ok := byOrder[p.OrderID]
		if !ok {
			continue
		}
		t.payment = t.payment.Add(p.Value)
	}

	out := make([]types.OrderFact, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		t := byOrder[o.OrderID]
		f := types.OrderFact{
			OrderID:           o.OrderID,
			CustomerID:        o.CustomerID,
			Status:            o.Status,
			PurchasedAt:       o.PurchasedAt,
			DeliveredAt:       o.DeliveredAt,
			EstimatedDelivery: o.EstimatedDelivery,
			ItemCount:         t.items,
			TotalItemValue:    t.value,
			TotalFreightValue: t.freight,
			TotalPayment:      t.payment,
			Month:             MonthBucket(o.PurchasedAt),
		}
		if c, ok := customers[o.CustomerID]; ok {
			f.CustomerUniqueID = c.CustomerUniqueID
			f.CustomerCity = c.City
			f.CustomerState = c.State
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Lines joins each staged item to its order, product and seller. Items whose
// order is missing are dropped; missing products or sellers are flagged, not dropped.
// Output is sorted by order id then item sequence.
func Lines(snap *types.Snapshot) []types.OrderLine {
	orders := make(map[string]types.Order, len(snap.Orders))
	for _, o := range snap.Orders {
		orders[o.OrderID] = o
	}
	products := make(map[string]types.Product, len(snap.Products))
	for _, p := range snap.Products {
		products[p.ProductID] = p
	}
	sellers := make(map[string]types.Seller, len(snap.Sellers))
	for _, s := range snap.Sellers {
		sellers[s.SellerID] = s
	}

	out := make([]types.OrderLine, 0, len(snap.OrderItems))
	for _, it := range snap.OrderItems {
		o, ok := orders[it.OrderID]
		if !ok {
			continue
		}
		l := types.OrderLine{
			OrderID:           it.OrderID,
			OrderItemID:       it.OrderItemID,
			ProductID:         it.ProductID,
			SellerID:          it.SellerID,
			Price:             it.Price,
			FreightValue:      it.FreightValue,
			Status:            o.Status,
			PurchasedAt:       o.PurchasedAt,
			DeliveredAt:       o.DeliveredAt,
			EstimatedDelivery: o.EstimatedDelivery,
			Month:             MonthBucket(o.PurchasedAt),
		}
		if p, ok := products[it.ProductID]; ok {
			l.ProductFound = true
			l.CategoryName = p.CategoryName
		}
		if s, ok := sellers[it.SellerID]; ok {
			l.SellerFound = true
			l.SellerState = s.State
		}
		out = append(out, l)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderID != out[j].OrderID {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].OrderItemID < out[j].OrderItemID
	})
	return out
}
