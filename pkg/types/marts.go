package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthLayout is the layout of month buckets. Lexical order on it is chronological.
const MonthLayout = "2006-01"

// OrderFact is one row per staged order, carrying item and payment totals.
type OrderFact struct {
	OrderID           string          `json:"order_id"`
	CustomerID        string          `json:"customer_id"`
	CustomerUniqueID  string          `json:"customer_unique_id,omitempty"`
	CustomerCity      string          `json:"customer_city,omitempty"`
	CustomerState     string          `json:"customer_state,omitempty"`
	Status            OrderStatus     `json:"order_status"`
	PurchasedAt       *time.Time      `json:"order_purchase_timestamp"`
	DeliveredAt       *time.Time      `json:"order_delivered_customer_date"`
	EstimatedDelivery *time.Time      `json:"order_estimated_delivery_date"`
	ItemCount         int             `json:"item_count"`
	TotalItemValue    decimal.Decimal `json:"total_items_value"`
	TotalFreightValue decimal.Decimal `json:"total_freight_value"`
	TotalPayment      decimal.Decimal `json:"total_payment"`
	Month             string          `json:"month_bucket,omitempty"`
}

// HasMonth reports whether the fact carries a month bucket.
func (f OrderFact) HasMonth() bool { return f.Month != "" }

// OrderLine is a staged item joined to its order, product and seller.
type OrderLine struct {
	OrderID           string          `json:"order_id"`
	OrderItemID       int             `json:"order_item_id"`
	ProductID         string          `json:"product_id"`
	ProductFound      bool            `json:"product_found"`
	CategoryName      string          `json:"product_category_name,omitempty"`
	SellerID          string          `json:"seller_id"`
	SellerFound       bool            `json:"seller_found"`
	SellerState       string          `json:"seller_state,omitempty"`
	Price             decimal.Decimal `json:"price"`
	FreightValue      decimal.Decimal `json:"freight_value"`
	Status            OrderStatus     `json:"order_status"`
	PurchasedAt       *time.Time      `json:"order_purchase_timestamp"`
	DeliveredAt       *time.Time      `json:"order_delivered_customer_date"`
	EstimatedDelivery *time.Time      `json:"order_estimated_delivery_date"`
	Month             string          `json:"month_bucket,omitempty"`
}

// CustomerLTV is the lifetime rollup for one unique customer.
type CustomerLTV struct {
	CustomerUniqueID string          `json:"customer_unique_id"`
	City             string          `json:"customer_city,omitempty"`
	State            string          `json:"customer_state,omitempty"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	TotalPayment     decimal.Decimal `json:"total_payment"`
	TotalOrders      int             `json:"total_orders"`
	FirstOrderDate   *time.Time      `json:"first_order_date"`
	LastOrderDate    *time.Time      `json:"last_order_date"`
	LifetimeDays     *int            `json:"customer_lifetime_days"`
}

// CustomerRFM is the recency/frequency/monetary score of one unique customer.
type CustomerRFM struct {
	CustomerUniqueID string          `json:"customer_unique_id"`
	RecencyDays      *int            `json:"recency_days"`
	Frequency        int             `json:"frequency"`
	Monetary         decimal.Decimal `json:"monetary"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	Activity         ActivityStatus  `json:"activity_status"`
	Churned          bool            `json:"is_churned"`
	Segment          Segment         `json:"customer_segment"`
	EvaluatedAt      time.Time       `json:"evaluated_at"`
}

// ProductPerformance aggregates order lines for one product.
type ProductPerformance struct {
	ProductID         string          `json:"product_id"`
	CategoryName      string          `json:"product_category_name,omitempty"`
	TotalSalesValue   decimal.Decimal `json:"total_sales_value"`
	TotalFreightValue decimal.Decimal `json:"total_freight_value"`
	TotalOrders       int             `json:"total_orders"`
	UnitsSold         int             `json:"units_sold"`
}

// CategoryPerformance aggregates product performance for one category.
type CategoryPerformance struct {
	CategoryName       string          `json:"product_category_name"`
	ProductCount       int             `json:"product_count"`
	TotalSales         decimal.Decimal `json:"total_sales"`
	TotalOrders        int             `json:"total_orders"`
	AvgSalesPerProduct decimal.Decimal `json:"avg_sales_per_product"`
}

// SellerPerformance aggregates delivered order lines for one seller.
type SellerPerformance struct {
	SellerID        string              `json:"seller_id"`
	State           string              `json:"seller_state,omitempty"`
	DeliveredOrders int                 `json:"delivered_orders"`
	TotalRevenue    decimal.Decimal     `json:"total_revenue"`
	OnTimeOrders    int                 `json:"on_time_orders"`
	OnTimeRate      decimal.NullDecimal `json:"on_time_rate"`
}

// StatePerformance aggregates order facts by customer state.
type StatePerformance struct {
	State            string              `json:"customer_state"`
	CitiesCount      int                 `json:"cities_count"`
	TotalOrders      int                 `json:"total_orders"`
	TotalSales       decimal.Decimal     `json:"total_sales"`
	UniqueCustomers  int                 `json:"unique_customers"`
	AvgOrderValue    decimal.NullDecimal `json:"avg_order_value"`
	AvgCustomerValue decimal.NullDecimal `json:"avg_customer_value"`
}

// DeliveryPerformance aggregates delivered orders by customer state.
type DeliveryPerformance struct {
	State            string              `json:"customer_state"`
	DeliveredOrders  int                 `json:"total_deliveries"`
	AvgActualDays    decimal.NullDecimal `json:"avg_actual_delivery_days"`
	AvgEstimatedDays decimal.NullDecimal `json:"avg_estimated_delivery_days"`
	AvgDelayDays     decimal.NullDecimal `json:"avg_delay_days"`
	OnTimeDeliveries int                 `json:"on_time_deliveries"`
	OnTimeRate       decimal.NullDecimal `json:"on_time_rate"`
}

// MonthlyTrend is one month of the sales series.
type MonthlyTrend struct {
	Month         string              `json:"month"`
	Year          int                 `json:"year"`
	Quarter       string              `json:"quarter"`
	TotalOrders   int                 `json:"total_orders"`
	TotalSales    decimal.Decimal     `json:"total_sales"`
	AvgOrderValue decimal.NullDecimal `json:"avg_order_value"`
	GrowthPct     decimal.NullDecimal `json:"growth_pct"`
}

// BuyerSplit counts first-time and repeat buyers in one month.
type BuyerSplit struct {
	Month          string `json:"month"`
	FirstTimeCount int    `json:"first_time_count"`
	RepeatCount    int    `json:"repeat_count"`
}

// CohortCell counts distinct customers of a cohort active in an observation month.
type CohortCell struct {
	CohortMonth      string `json:"cohort_month"`
	ObservationMonth string `json:"observation_month"`
	MonthOffset      int    `json:"month_offset"`
	Customers        int    `json:"customer_count"`
}

// RetentionRow is the retention ratio of one month.
type RetentionRow struct {
	Month              string              `json:"month"`
	ActiveCustomers    int                 `json:"active_customers"`
	NewCustomers       int                 `json:"new_customers"`
	ReturningCustomers int                 `json:"returning_customers"`
	RetentionRate      decimal.NullDecimal `json:"retention_rate"`
}

// AffinityPair counts orders in which two distinct products co-occur.
// ProductA is always lexically smaller than ProductB.
type AffinityPair struct {
	ProductA  string `json:"product_a"`
	CategoryA string `json:"category_a,omitempty"`
	ProductB  string `json:"product_b"`
	CategoryB string `json:"category_b,omitempty"`
	Count     int    `json:"times_bought_together"`
	Rank      int    `json:"rank"`
}
