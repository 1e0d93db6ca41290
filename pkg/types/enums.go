// Package types defines the public domain types for the ledgerlens derived-metrics engine.
package types

import "strings"

// OrderStatus is the canonical order lifecycle status after staging.
type OrderStatus string

// OrderStatus values enumerate the statuses recognised by the normalizer.
const (
	OrderCreated     OrderStatus = "created"
	OrderApproved    OrderStatus = "approved"
	OrderInvoiced    OrderStatus = "invoiced"
	OrderProcessing  OrderStatus = "processing"
	OrderShipped     OrderStatus = "shipped"
	OrderDelivered   OrderStatus = "delivered"
	OrderCanceled    OrderStatus = "canceled"
	OrderUnavailable OrderStatus = "unavailable"
	OrderUnknown     OrderStatus = "unknown"
)

var knownOrderStatuses = map[OrderStatus]bool{
	OrderCreated:     true,
	OrderApproved:    true,
	OrderInvoiced:    true,
	OrderProcessing:  true,
	OrderShipped:     true,
	OrderDelivered:   true,
	OrderCanceled:    true,
	OrderUnavailable: true,
}

// ParseOrderStatus maps a raw status string onto the canonical enum.
// Unrecognised values map to OrderUnknown; "cancelled" is accepted as a spelling of canceled.
func ParseOrderStatus(raw string) OrderStatus {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "cancelled" {
		return OrderCanceled
	}
	if knownOrderStatuses[s] {
		return s
	}
	return OrderUnknown
}

// ActivityStatus distinguishes customers that never ordered from churned ones.
type ActivityStatus string

// ActivityStatus values.
const (
	ActivityActive      ActivityStatus = "active"
	ActivityChurned     ActivityStatus = "churned"
	ActivityNeverActive ActivityStatus = "never_active"
)

// Segment is the descriptive customer segment label.
type Segment string

// Segment values, in evaluation order.
const (
	SegmentHighValueActive Segment = "high_value_active"
	SegmentHighValueAtRisk Segment = "high_value_at_risk"
	SegmentLoyal           Segment = "loyal"
	SegmentChurned         Segment = "churned"
	SegmentOneTime         Segment = "one_time"
	SegmentRegular         Segment = "regular"
	SegmentNeverActive     Segment = "never_active"
)

// RunStatus represents the lifecycle state of an engine run.
type RunStatus string

// RunStatus values represent the lifecycle states of an engine run.
const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunPartial   RunStatus = "PARTIAL"
	RunFailed    RunStatus = "FAILED"
)

// ComponentStatus is the outcome of a single graph node within a run.
type ComponentStatus string

// ComponentStatus values.
const (
	ComponentPending   ComponentStatus = "PENDING"
	ComponentRunning   ComponentStatus = "RUNNING"
	ComponentSucceeded ComponentStatus = "SUCCEEDED"
	ComponentFailed    ComponentStatus = "FAILED"
	ComponentSkipped   ComponentStatus = "SKIPPED"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)
