// Package staging cleans and types raw ledger rows into canonical staging tables.
package staging

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// timestampLayouts are tried in order when parsing raw timestamps.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TableReport counts what happened to the rows of one raw table.
type TableReport struct {
	Read       int `json:"read"`
	Kept       int `json:"kept"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// Report is keyed by entity name (orders, customers, ...).
type Report map[string]TableReport

// Normalize converts a raw snapshot into canonical staging tables. It never fails:
// rows that cannot be typed are rejected and counted in the report.
func Normalize(raw *types.RawSnapshot) (*types.Snapshot, Report) {
	report := Report{}
	if raw == nil {
		raw = &types.RawSnapshot{}
	}

	translations := translationIndex(raw.Translations)

	snap := &types.Snapshot{
		Orders:     normalizeOrders(raw.Orders, report),
		Customers:  normalizeCustomers(raw.Customers, report),
		OrderItems: normalizeItems(raw.OrderItems, report),
		Products:   normalizeProducts(raw.Products, translations, report),
		Payments:   normalizePayments(raw.Payments, report),
		Sellers:    normalizeSellers(raw.Sellers, report),
	}
	return snap, report
}

func normalizeOrders(rows []types.RawOrder, report Report) []types.Order {
	rep := TableReport{Read: len(rows)}
	seen := make(map[string]bool, len(rows))
	out := make([]types.Order, 0, len(rows))

	for _, r := range rows {
		id := clean(r.OrderID)
		if id == "" {
			rep.Rejected++
			continue
		}
		if seen[id] {
			rep.Duplicates++
			continue
		}
		seen[id] = true

		o := types.Order{
			OrderID:           id,
			CustomerID:        clean(r.CustomerID),
			Status:            types.ParseOrderStatus(r.Status),
			PurchasedAt:       parseTimestamp(r.PurchasedAt),
			ApprovedAt:        parseTimestamp(r.ApprovedAt),
			DeliveredAt:       parseTimestamp(r.DeliveredAt),
			EstimatedDelivery: parseTimestamp(r.EstimatedDelivery),
		}
		// A delivery date is only meaningful for delivered orders.
		if o.Status != types.OrderDelivered {
			o.DeliveredAt = nil
		}
		out = append(out, o)
	}

	rep.Kept = len(out)
	report["orders"] = rep
	return out
}

func normalizeCustomers(rows []types.RawCustomer, report Report) []types.Customer {
	rep := TableReport{Read: len(rows)}
	seen := make(map[string]bool, len(rows))
	out := make([]types.Customer, 0, len(rows))

	for _, r := range rows {
		id := clean(r.CustomerID)
		if id == "" {
			rep.Rejected++
			continue
		}
		if seen[id] {
			rep.Duplicates++
			continue
		}
		seen[id] = true

		unique := clean(r.CustomerUniqueID)
		if unique == "" {
			unique = id
		}
		out = append(out, types.Customer{
			CustomerID:       id,
			CustomerUniqueID: unique,
			ZipCodePrefix:    clean(r.ZipCodePrefix),
			City:             clean(r.City),
			State:            strings.ToUpper(clean(r.State)),
		})
	}

	rep.Kept = len(out)
	report["customers"] = rep
	return out
}

type itemKey struct {
	orderID string
	seq     int
}

func normalizeItems(rows []types.RawOrderItem, report Report) []types.OrderItem {
	rep := TableReport{Read: len(rows)}
	seen := make(map[itemKey]bool, len(rows))
	out := make([]types.OrderItem, 0, len(rows))

	for _, r := range rows {
		orderID := clean(r.OrderID)
		productID := clean(r.ProductID)
		seq, seqErr := strconv.Atoi(clean(r.OrderItemID))
		price, priceErr := parseMoney(r.Price)
		freight, freightErr := parseOptionalMoney(r.FreightValue)
		if orderID == "" || productID == "" || seqErr != nil || priceErr != nil || freightErr != nil {
			rep.Rejected++
			continue
		}
		k := itemKey{orderID, seq}
		if seen[k] {
			rep.Duplicates++
			continue
		}
		seen[k] = true

		out = append(out, types.OrderItem{
			OrderID:      orderID,
			OrderItemID:  seq,
			ProductID:    productID,
			SellerID:     clean(r.SellerID),
			Price:        price,
			FreightValue: freight,
		})
	}

	rep.Kept = len(out)
	report["order_items"] = rep
	return out
}

func normalizeProducts(rows []types.RawProduct, translations map[string]string, report Report) []types.Product {
	rep := TableReport{Read: len(rows)}
	seen := make(map[string]bool, len(rows))
	out := make([]types.Product, 0, len(rows))

	for _, r := range rows {
		id := clean(r.ProductID)
		if id == "" {
			rep.Rejected++
			continue
		}
		if seen[id] {
			rep.Duplicates++
			continue
		}
		seen[id] = true

		category := clean(r.CategoryName)
		if translated, ok := translations[category]; ok {
			category = translated
		}
		out = append(out, types.Product{ProductID: id, CategoryName: category})
	}

	rep.Kept = len(out)
	report["products"] = rep
	return out
}

// normalizePayments dedups on (order, sequential) only when the sequential
// parses. Unsequenced rows are kept and numbered after the order's highest
// explicit sequential, in input order.
func normalizePayments(rows []types.RawPayment, report Report) []types.Payment {
	rep := TableReport{Read: len(rows)}
	seen := make(map[itemKey]bool, len(rows))
	maxSeq := make(map[string]int)
	out := make([]types.Payment, 0, len(rows))
	var unsequenced []int

	for _, r := range rows {
		orderID := clean(r.OrderID)
		value, valueErr := parseMoney(r.Value)
		if orderID == "" || valueErr != nil {
			rep.Rejected++
			continue
		}
		p := types.Payment{
			OrderID:      orderID,
			PaymentType:  strings.ToLower(clean(r.PaymentType)),
			Installments: parseIntOr(r.Installments, 0),
			Value:        value,
		}
		seq, err := strconv.Atoi(clean(r.Sequential))
		if err != nil {
			unsequenced = append(unsequenced, len(out))
			out = append(out, p)
			continue
		}
		k := itemKey{orderID, seq}
		if seen[k] {
			rep.Duplicates++
			continue
		}
		seen[k] = true
		maxSeq[orderID] = max(maxSeq[orderID], seq)
		p.Sequential = seq
		out = append(out, p)
	}

	for _, i := range unsequenced {
		id := out[i].OrderID
		maxSeq[id]++
		out[i].Sequential = maxSeq[id]
	}

	rep.Kept = len(out)
	report["payments"] = rep
	return out
}

func normalizeSellers(rows []types.RawSeller, report Report) []types.Seller {
	rep := TableReport{Read: len(rows)}
	seen := make(map[string]bool, len(rows))
	out := make([]types.Seller, 0, len(rows))

	for _, r := range rows {
		id := clean(r.SellerID)
		if id == "" {
			rep.Rejected++
			continue
		}
		if seen[id] {
			rep.Duplicates++
			continue
		}
		seen[id] = true

		out = append(out, types.Seller{
			SellerID:      id,
			ZipCodePrefix: clean(r.ZipCodePrefix),
			City:          clean(r.City),
			State:         strings.ToUpper(clean(r.State)),
		})
	}

	rep.Kept = len(out)
	report["sellers"] = rep
	return out
}

func translationIndex(rows []types.RawCategoryTranslation) map[string]string {
	idx := make(map[string]string, len(rows))
	for _, r := range rows {
		from, to := clean(r.CategoryName), clean(r.CategoryNameEnglish)
		if from == "" || to == "" {
			continue
		}
		if _, ok := idx[from]; !ok {
			idx[from] = to
		}
	}
	return idx
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

// parseTimestamp returns nil for empty or unparsable input; parsed values are UTC.
func parseTimestamp(s string) *time.Time {
	s = clean(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(clean(s))
}

func parseOptionalMoney(s string) (decimal.Decimal, error) {
	if clean(s) == "" {
		return decimal.Zero, nil
	}
	return parseMoney(s)
}

func parseIntOr(s string, fallback int) int {
	n, err := strconv.Atoi(clean(s))
	if err != nil {
		return fallback
	}
	return n
}
