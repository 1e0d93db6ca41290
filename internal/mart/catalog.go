package mart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// Source tables, written by the external loader.
const (
	RawOrders       = "raw_orders"
	RawCustomers    = "raw_customers"
	RawOrderItems   = "raw_order_items"
	RawProducts     = "raw_products"
	RawPayments     = "raw_payments"
	RawSellers      = "raw_sellers"
	RawTranslations = "raw_category_translations"
)

// Staging tables.
const (
	StgOrders     = "stg_orders"
	StgCustomers  = "stg_customers"
	StgOrderItems = "stg_order_items"
	StgProducts   = "stg_products"
	StgPayments   = "stg_payments"
	StgSellers    = "stg_sellers"
)

// Derived marts.
const (
	OrdersMart              = "orders_mart"
	OrderLinesMart          = "order_lines_mart"
	CustomerLTVMart         = "customer_ltv_mart"
	CustomerRFMMart         = "customer_rfm_mart"
	ProductPerformanceMart  = "product_performance_mart"
	CategoryPerformanceMart = "category_performance_mart"
	SellerPerformanceMart   = "seller_performance_mart"
	StatePerformanceMart    = "state_performance_mart"
	DeliveryPerformanceMart = "delivery_performance_mart"
	MonthlyTrendMart        = "monthly_trend_mart"
	BuyerSplitMart          = "buyer_split_mart"
	CohortMatrixMart        = "cohort_matrix_mart"
	RetentionMart           = "retention_mart"
	AffinityPairsMart       = "affinity_pairs_mart"
)

func text(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Text}
	}
	return cols
}

func init() {
	registerSources()
	registerStaging()
	registerMarts()
}

func registerSources() {
	register(RawOrders, KindSource, []string{"order_id"},
		text("order_id", "customer_id", "order_status", "order_purchase_timestamp",
			"order_approved_at", "order_delivered_customer_date", "order_estimated_delivery_date"),
		func(r types.RawOrder) []any {
			return []any{r.OrderID, r.CustomerID, r.Status, r.PurchasedAt, r.ApprovedAt, r.DeliveredAt, r.EstimatedDelivery}
		})
	register(RawCustomers, KindSource, []string{"customer_id"},
		text("customer_id", "customer_unique_id", "customer_zip_code_prefix", "customer_city", "customer_state"),
		func(r types.RawCustomer) []any {
			return []any{r.CustomerID, r.CustomerUniqueID, r.ZipCodePrefix, r.City, r.State}
		})
	register(RawOrderItems, KindSource, []string{"order_id", "order_item_id"},
		text("order_id", "order_item_id", "product_id", "seller_id", "price", "freight_value"),
		func(r types.RawOrderItem) []any {
			return []any{r.OrderID, r.OrderItemID, r.ProductID, r.SellerID, r.Price, r.FreightValue}
		})
	register(RawProducts, KindSource, []string{"product_id"},
		text("product_id", "product_category_name"),
		func(r types.RawProduct) []any { return []any{r.ProductID, r.CategoryName} })
	register(RawPayments, KindSource, []string{"order_id", "payment_sequential"},
		text("order_id", "payment_sequential", "payment_type", "payment_installments", "payment_value"),
		func(r types.RawPayment) []any {
			return []any{r.OrderID, r.Sequential, r.PaymentType, r.Installments, r.Value}
		})
	register(RawSellers, KindSource, []string{"seller_id"},
		text("seller_id", "seller_zip_code_prefix", "seller_city", "seller_state"),
		func(r types.RawSeller) []any { return []any{r.SellerID, r.ZipCodePrefix, r.City, r.State} })
	register(RawTranslations, KindSource, []string{"product_category_name"},
		text("product_category_name", "product_category_name_english"),
		func(r types.RawCategoryTranslation) []any { return []any{r.CategoryName, r.CategoryNameEnglish} })
}

func registerStaging() {
	register(StgOrders, KindDerived, []string{"order_id"},
		[]Column{
			{"order_id", Text}, {"customer_id", Text}, {"order_status", Text},
			{"order_purchase_timestamp", Timestamptz}, {"order_approved_at", Timestamptz},
			{"order_delivered_customer_date", Timestamptz}, {"order_estimated_delivery_date", Timestamptz},
		},
		func(o types.Order) []any {
			return []any{o.OrderID, o.CustomerID, string(o.Status), nullTime(o.PurchasedAt), nullTime(o.ApprovedAt),
				nullTime(o.DeliveredAt), nullTime(o.EstimatedDelivery)}
		})
	register(StgCustomers, KindDerived, []string{"customer_id"},
		text("customer_id", "customer_unique_id", "customer_zip_code_prefix", "customer_city", "customer_state"),
		func(c types.Customer) []any {
			return []any{c.CustomerID, c.CustomerUniqueID, c.ZipCodePrefix, c.City, c.State}
		})
	register(StgOrderItems, KindDerived, []string{"order_id", "order_item_id"},
		[]Column{
			{"order_id", Text}, {"order_item_id", Integer}, {"product_id", Text}, {"seller_id", Text},
			{"price", Numeric}, {"freight_value", Numeric},
		},
		func(i types.OrderItem) []any {
			return []any{i.OrderID, i.OrderItemID, i.ProductID, i.SellerID, i.Price, i.FreightValue}
		})
	register(StgProducts, KindDerived, []string{"product_id"},
		text("product_id", "product_category_name"),
		func(p types.Product) []any { return []any{p.ProductID, nullString(p.CategoryName)} })
	register(StgPayments, KindDerived, []string{"order_id", "payment_sequential"},
		[]Column{
			{"order_id", Text}, {"payment_sequential", Integer}, {"payment_type", Text},
			{"payment_installments", Integer}, {"payment_value", Numeric},
		},
		func(p types.Payment) []any {
			return []any{p.OrderID, p.Sequential, p.PaymentType, p.Installments, p.Value}
		})
	register(StgSellers, KindDerived, []string{"seller_id"},
		text("seller_id", "seller_zip_code_prefix", "seller_city", "seller_state"),
		func(s types.Seller) []any { return []any{s.SellerID, s.ZipCodePrefix, s.City, s.State} })
}

func registerMarts() {
	register(OrdersMart, KindDerived, []string{"order_id"},
		[]Column{
			{"order_id", Text}, {"customer_id", Text}, {"customer_unique_id", Text},
			{"customer_city", Text}, {"customer_state", Text}, {"order_status", Text},
			{"order_purchase_timestamp", Timestamptz}, {"order_delivered_customer_date", Timestamptz},
			{"order_estimated_delivery_date", Timestamptz}, {"item_count", Integer},
			{"total_items_value", Numeric}, {"total_freight_value", Numeric}, {"total_payment", Numeric},
			{"month_bucket", Text},
		},
		func(f types.OrderFact) []any {
			return []any{f.OrderID, f.CustomerID, nullString(f.CustomerUniqueID), nullString(f.CustomerCity),
				nullString(f.CustomerState), string(f.Status), nullTime(f.PurchasedAt), nullTime(f.DeliveredAt),
				nullTime(f.EstimatedDelivery), f.ItemCount, f.TotalItemValue, f.TotalFreightValue, f.TotalPayment,
				nullString(f.Month)}
		})
	register(OrderLinesMart, KindDerived, []string{"order_id", "order_item_id"},
		[]Column{
			{"order_id", Text}, {"order_item_id", Integer}, {"product_id", Text}, {"product_found", Boolean},
			{"product_category_name", Text}, {"seller_id", Text}, {"seller_found", Boolean},
			{"seller_state", Text}, {"price", Numeric}, {"freight_value", Numeric}, {"order_status", Text},
			{"order_purchase_timestamp", Timestamptz}, {"order_delivered_customer_date", Timestamptz},
			{"order_estimated_delivery_date", Timestamptz}, {"month_bucket", Text},
		},
		func(l types.OrderLine) []any {
			return []any{l.OrderID, l.OrderItemID, l.ProductID, l.ProductFound, nullString(l.CategoryName),
				l.SellerID, l.SellerFound, nullString(l.SellerState), l.Price, l.FreightValue, string(l.Status),
				nullTime(l.PurchasedAt), nullTime(l.DeliveredAt), nullTime(l.EstimatedDelivery), nullString(l.Month)}
		})
	register(CustomerLTVMart, KindDerived, []string{"customer_unique_id"},
		[]Column{
			{"customer_unique_id", Text}, {"customer_city", Text}, {"customer_state", Text},
			{"total_spent", Numeric}, {"total_payment", Numeric}, {"total_orders", Integer},
			{"first_order_date", Timestamptz}, {"last_order_date", Timestamptz}, {"customer_lifetime_days", Integer},
		},
		func(c types.CustomerLTV) []any {
			return []any{c.CustomerUniqueID, nullString(c.City), nullString(c.State), c.TotalSpent, c.TotalPayment,
				c.TotalOrders, nullTime(c.FirstOrderDate), nullTime(c.LastOrderDate), nullInt(c.LifetimeDays)}
		})
	register(CustomerRFMMart, KindDerived, []string{"customer_unique_id"},
		[]Column{
			{"customer_unique_id", Text}, {"recency_days", Integer}, {"frequency", Integer},
			{"monetary", Numeric}, {"total_spent", Numeric}, {"activity_status", Text}, {"is_churned", Boolean},
			{"customer_segment", Text}, {"evaluated_at", Timestamptz},
		},
		func(r types.CustomerRFM) []any {
			return []any{r.CustomerUniqueID, nullInt(r.RecencyDays), r.Frequency, r.Monetary, r.TotalSpent,
				string(r.Activity), r.Churned, string(r.Segment), r.EvaluatedAt}
		})
	register(ProductPerformanceMart, KindDerived, []string{"product_id"},
		[]Column{
			{"product_id", Text}, {"product_category_name", Text}, {"total_sales_value", Numeric},
			{"total_freight_value", Numeric}, {"total_orders", Integer}, {"units_sold", Integer},
		},
		func(p types.ProductPerformance) []any {
			return []any{p.ProductID, nullString(p.CategoryName), p.TotalSalesValue, p.TotalFreightValue,
				p.TotalOrders, p.UnitsSold}
		})
	register(CategoryPerformanceMart, KindDerived, []string{"product_category_name"},
		[]Column{
			{"product_category_name", Text}, {"product_count", Integer}, {"total_sales", Numeric},
			{"total_orders", Integer}, {"avg_sales_per_product", Numeric},
		},
		func(c types.CategoryPerformance) []any {
			return []any{c.CategoryName, c.ProductCount, c.TotalSales, c.TotalOrders, c.AvgSalesPerProduct}
		})
	register(SellerPerformanceMart, KindDerived, []string{"seller_id"},
		[]Column{
			{"seller_id", Text}, {"seller_state", Text}, {"delivered_orders", Integer},
			{"total_revenue", Numeric}, {"on_time_orders", Integer}, {"on_time_rate", Numeric},
		},
		func(s types.SellerPerformance) []any {
			return []any{s.SellerID, nullString(s.State), s.DeliveredOrders, s.TotalRevenue, s.OnTimeOrders,
				nullDecimal(s.OnTimeRate)}
		})
	register(StatePerformanceMart, KindDerived, []string{"customer_state"},
		[]Column{
			{"customer_state", Text}, {"cities_count", Integer}, {"total_orders", Integer},
			{"total_sales", Numeric}, {"unique_customers", Integer}, {"avg_order_value", Numeric},
			{"avg_customer_value", Numeric},
		},
		func(s types.StatePerformance) []any {
			return []any{s.State, s.CitiesCount, s.TotalOrders, s.TotalSales, s.UniqueCustomers,
				nullDecimal(s.AvgOrderValue), nullDecimal(s.AvgCustomerValue)}
		})
	register(DeliveryPerformanceMart, KindDerived, []string{"customer_state"},
		[]Column{
			{"customer_state", Text}, {"total_deliveries", Integer}, {"avg_actual_delivery_days", Numeric},
			{"avg_estimated_delivery_days", Numeric}, {"avg_delay_days", Numeric},
			{"on_time_deliveries", Integer}, {"on_time_rate", Numeric},
		},
		func(d types.DeliveryPerformance) []any {
			return []any{d.State, d.DeliveredOrders, nullDecimal(d.AvgActualDays), nullDecimal(d.AvgEstimatedDays),
				nullDecimal(d.AvgDelayDays), d.OnTimeDeliveries, nullDecimal(d.OnTimeRate)}
		})
	register(MonthlyTrendMart, KindDerived, []string{"month"},
		[]Column{
			{"month", Text}, {"year", Integer}, {"quarter", Text}, {"total_orders", Integer},
			{"total_sales", Numeric}, {"avg_order_value", Numeric}, {"growth_pct", Numeric},
		},
		func(m types.MonthlyTrend) []any {
			return []any{m.Month, m.Year, m.Quarter, m.TotalOrders, m.TotalSales,
				nullDecimal(m.AvgOrderValue), nullDecimal(m.GrowthPct)}
		})
	register(BuyerSplitMart, KindDerived, []string{"month"},
		[]Column{{"month", Text}, {"first_time_count", Integer}, {"repeat_count", Integer}},
		func(b types.BuyerSplit) []any { return []any{b.Month, b.FirstTimeCount, b.RepeatCount} })
	register(CohortMatrixMart, KindDerived, []string{"cohort_month", "observation_month"},
		[]Column{
			{"cohort_month", Text}, {"observation_month", Text}, {"month_offset", Integer},
			{"customer_count", Integer},
		},
		func(c types.CohortCell) []any {
			return []any{c.CohortMonth, c.ObservationMonth, c.MonthOffset, c.Customers}
		})
	register(RetentionMart, KindDerived, []string{"month"},
		[]Column{
			{"month", Text}, {"active_customers", Integer}, {"new_customers", Integer},
			{"returning_customers", Integer}, {"retention_rate", Numeric},
		},
		func(r types.RetentionRow) []any {
			return []any{r.Month, r.ActiveCustomers, r.NewCustomers, r.ReturningCustomers,
				nullDecimal(r.RetentionRate)}
		})
	register(AffinityPairsMart, KindDerived, []string{"product_a", "product_b"},
		[]Column{
			{"product_a", Text}, {"category_a", Text}, {"product_b", Text}, {"category_b", Text},
			{"times_bought_together", Integer}, {"rank", Integer},
		},
		func(p types.AffinityPair) []any {
			return []any{p.ProductA, nullString(p.CategoryA), p.ProductB, nullString(p.CategoryB), p.Count, p.Rank}
		})
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}
