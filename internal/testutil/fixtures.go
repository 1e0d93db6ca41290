package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// Day parses a YYYY-MM-DD date as UTC midnight and returns a pointer to it.
func Day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Fact builds a bucketed order fact for a unique customer.
func Fact(orderID, customerUniqueID, purchased, itemValue string) types.OrderFact {
	f := types.OrderFact{
		OrderID:          orderID,
		CustomerID:       "addr-" + customerUniqueID,
		CustomerUniqueID: customerUniqueID,
		Status:           types.OrderDelivered,
		TotalItemValue:   Dec(itemValue),
		TotalPayment:     Dec(itemValue),
	}
	if purchased != "" {
		f.PurchasedAt = Day(purchased)
		f.Month = f.PurchasedAt.Format(types.MonthLayout)
	}
	return f
}

// ScenarioSnapshot is the reference ledger: customer X orders on 2024-01-05,
// 2024-02-10 and 2024-04-01 with item totals 100, 50 and 200.
func ScenarioSnapshot() *types.Snapshot {
	return &types.Snapshot{
		Customers: []types.Customer{
			{CustomerID: "x-addr-1", CustomerUniqueID: "X", City: "curitiba", State: "PR"},
			{CustomerID: "x-addr-2", CustomerUniqueID: "X", City: "curitiba", State: "PR"},
		},
		Orders: []types.Order{
			{OrderID: "o1", CustomerID: "x-addr-1", Status: types.OrderDelivered, PurchasedAt: Day("2024-01-05"),
				DeliveredAt: Day("2024-01-10"), EstimatedDelivery: Day("2024-01-20")},
			{OrderID: "o2", CustomerID: "x-addr-2", Status: types.OrderDelivered, PurchasedAt: Day("2024-02-10"),
				DeliveredAt: Day("2024-02-25"), EstimatedDelivery: Day("2024-02-20")},
			{OrderID: "o3", CustomerID: "x-addr-1", Status: types.OrderShipped, PurchasedAt: Day("2024-04-01"),
				EstimatedDelivery: Day("2024-04-15")},
		},
		OrderItems: []types.OrderItem{
			{OrderID: "o1", OrderItemID: 1, ProductID: "pA", SellerID: "s1", Price: Dec("60"), FreightValue: Dec("5")},
			{OrderID: "o1", OrderItemID: 2, ProductID: "pB", SellerID: "s1", Price: Dec("40"), FreightValue: Dec("5")},
			{OrderID: "o2", OrderItemID: 1, ProductID: "pA", SellerID: "s2", Price: Dec("50"), FreightValue: Dec("7")},
			{OrderID: "o3", OrderItemID: 1, ProductID: "pC", SellerID: "s1", Price: Dec("200"), FreightValue: Dec("12")},
		},
		Payments: []types.Payment{
			{OrderID: "o1", Sequential: 1, PaymentType: "credit_card", Value: Dec("110")},
			{OrderID: "o2", Sequential: 1, PaymentType: "boleto", Value: Dec("30")},
			{OrderID: "o2", Sequential: 2, PaymentType: "voucher", Value: Dec("27")},
			{OrderID: "o3", Sequential: 1, PaymentType: "credit_card", Value: Dec("212")},
		},
		Products: []types.Product{
			{ProductID: "pA", CategoryName: "housewares"},
			{ProductID: "pB", CategoryName: "toys"},
			{ProductID: "pC", CategoryName: "housewares"},
		},
		Sellers: []types.Seller{
			{SellerID: "s1", State: "SP"},
			{SellerID: "s2", State: "MG"},
		},
	}
}

// ScenarioRaw is ScenarioSnapshot expressed as raw loader rows.
func ScenarioRaw() *types.RawSnapshot {
	return &types.RawSnapshot{
		Customers: []types.RawCustomer{
			{CustomerID: "x-addr-1", CustomerUniqueID: "X", City: "curitiba", State: "pr"},
			{CustomerID: "x-addr-2", CustomerUniqueID: "X", City: "curitiba", State: "PR"},
			{CustomerID: "y-addr-1", CustomerUniqueID: "Y", City: "recife", State: "PE"},
		},
		Orders: []types.RawOrder{
			{OrderID: "o1", CustomerID: "x-addr-1", Status: "delivered", PurchasedAt: "2024-01-05 09:12:00",
				DeliveredAt: "2024-01-10 14:00:00", EstimatedDelivery: "2024-01-20 00:00:00"},
			{OrderID: "o2", CustomerID: "x-addr-2", Status: "delivered", PurchasedAt: "2024-02-10 18:40:00",
				DeliveredAt: "2024-02-25 10:00:00", EstimatedDelivery: "2024-02-20 00:00:00"},
			{OrderID: "o3", CustomerID: "x-addr-1", Status: "shipped", PurchasedAt: "2024-04-01 07:00:00",
				EstimatedDelivery: "2024-04-15 00:00:00"},
		},
		OrderItems: []types.RawOrderItem{
			{OrderID: "o1", OrderItemID: "1", ProductID: "pA", SellerID: "s1", Price: "60.00", FreightValue: "5.00"},
			{OrderID: "o1", OrderItemID: "2", ProductID: "pB", SellerID: "s1", Price: "40.00", FreightValue: "5.00"},
			{OrderID: "o2", OrderItemID: "1", ProductID: "pA", SellerID: "s2", Price: "50.00", FreightValue: "7.00"},
			{OrderID: "o3", OrderItemID: "1", ProductID: "pC", SellerID: "s1", Price: "200.00", FreightValue: "12.00"},
		},
		Payments: []types.RawPayment{
			{OrderID: "o1", Sequential: "1", PaymentType: "credit_card", Installments: "2", Value: "110.00"},
			{OrderID: "o2", Sequential: "1", PaymentType: "boleto", Installments: "1", Value: "30.00"},
			{OrderID: "o2", Sequential: "2", PaymentType: "voucher", Installments: "1", Value: "27.00"},
			{OrderID: "o3", Sequential: "1", PaymentType: "credit_card", Installments: "4", Value: "212.00"},
		},
		Products: []types.RawProduct{
			{ProductID: "pA", CategoryName: "utilidades_domesticas"},
			{ProductID: "pB", CategoryName: "brinquedos"},
			{ProductID: "pC", CategoryName: "utilidades_domesticas"},
		},
		Sellers: []types.RawSeller{
			{SellerID: "s1", State: "SP"},
			{SellerID: "s2", State: "MG"},
		},
		Translations: []types.RawCategoryTranslation{
			{CategoryName: "utilidades_domesticas", CategoryNameEnglish: "housewares"},
			{CategoryName: "brinquedos", CategoryNameEnglish: "toys"},
		},
	}
}
