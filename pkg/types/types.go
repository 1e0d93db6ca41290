package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawOrder is an order row as the external loader stored it; every field is text.
type RawOrder struct {
	OrderID           string `json:"order_id"`
	CustomerID        string `json:"customer_id"`
	Status            string `json:"order_status"`
	PurchasedAt       string `json:"order_purchase_timestamp"`
	ApprovedAt        string `json:"order_approved_at"`
	DeliveredAt       string `json:"order_delivered_customer_date"`
	EstimatedDelivery string `json:"order_estimated_delivery_date"`
}

// RawCustomer is a customer row as loaded.
type RawCustomer struct {
	CustomerID       string `json:"customer_id"`
	CustomerUniqueID string `json:"customer_unique_id"`
	ZipCodePrefix    string `json:"customer_zip_code_prefix"`
	City             string `json:"customer_city"`
	State            string `json:"customer_state"`
}

// RawOrderItem is an order item row as loaded.
type RawOrderItem struct {
	OrderID      string `json:"order_id"`
	OrderItemID  string `json:"order_item_id"`
	ProductID    string `json:"product_id"`
	SellerID     string `json:"seller_id"`
	Price        string `json:"price"`
	FreightValue string `json:"freight_value"`
}

// RawProduct is a product row as loaded.
type RawProduct struct {
	ProductID    string `json:"product_id"`
	CategoryName string `json:"product_category_name"`
}

// RawPayment is a payment row as loaded.
type RawPayment struct {
	OrderID      string `json:"order_id"`
	Sequential   string `json:"payment_sequential"`
	PaymentType  string `json:"payment_type"`
	Installments string `json:"payment_installments"`
	Value        string `json:"payment_value"`
}

// RawSeller is a seller row as loaded.
type RawSeller struct {
	SellerID      string `json:"seller_id"`
	ZipCodePrefix string `json:"seller_zip_code_prefix"`
	City          string `json:"seller_city"`
	State         string `json:"seller_state"`
}

// RawCategoryTranslation maps a source-language category to the canonical one.
type RawCategoryTranslation struct {
	CategoryName        string `json:"product_category_name"`
	CategoryNameEnglish string `json:"product_category_name_english"`
}

// RawSnapshot is the closed, already-ingested set of source rows for one run.
type RawSnapshot struct {
	Orders       []RawOrder
	Customers    []RawCustomer
	OrderItems   []RawOrderItem
	Products     []RawProduct
	Payments     []RawPayment
	Sellers      []RawSeller
	Translations []RawCategoryTranslation
}

// Order is a staged order.
type Order struct {
	OrderID           string      `json:"order_id"`
	CustomerID        string      `json:"customer_id"`
	Status            OrderStatus `json:"order_status"`
	PurchasedAt       *time.Time  `json:"order_purchase_timestamp"`
	ApprovedAt        *time.Time  `json:"order_approved_at"`
	DeliveredAt       *time.Time  `json:"order_delivered_customer_date"`
	EstimatedDelivery *time.Time  `json:"order_estimated_delivery_date"`
}

// Customer is a staged customer. CustomerID identifies a delivery address;
// CustomerUniqueID identifies the person and keys lifetime metrics.
type Customer struct {
	CustomerID       string `json:"customer_id"`
	CustomerUniqueID string `json:"customer_unique_id"`
	ZipCodePrefix    string `json:"customer_zip_code_prefix"`
	City             string `json:"customer_city"`
	State            string `json:"customer_state"`
}

// OrderItem is a staged order line.
type OrderItem struct {
	OrderID      string          `json:"order_id"`
	OrderItemID  int             `json:"order_item_id"`
	ProductID    string          `json:"product_id"`
	SellerID     string          `json:"seller_id"`
	Price        decimal.Decimal `json:"price"`
	FreightValue decimal.Decimal `json:"freight_value"`
}

// Product is a staged product with its translated category.
type Product struct {
	ProductID    string `json:"product_id"`
	CategoryName string `json:"product_category_name"`
}

// Payment is a staged payment row; an order may have several.
type Payment struct {
	OrderID      string          `json:"order_id"`
	Sequential   int             `json:"payment_sequential"`
	PaymentType  string          `json:"payment_type"`
	Installments int             `json:"payment_installments"`
	Value        decimal.Decimal `json:"payment_value"`
}

// Seller is a staged seller.
type Seller struct {
	SellerID      string `json:"seller_id"`
	ZipCodePrefix string `json:"seller_zip_code_prefix"`
	City          string `json:"seller_city"`
	State         string `json:"seller_state"`
}

// Snapshot holds the canonical staging tables.
type Snapshot struct {
	Orders     []Order
	Customers  []Customer
	OrderItems []OrderItem
	Products   []Product
	Payments   []Payment
	Sellers    []Seller
}
