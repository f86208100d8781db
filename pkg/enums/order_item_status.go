package enums

import "fmt"

// OrderItemStatus tracks fulfillment of a single order line.
type OrderItemStatus string

const (
	OrderItemStatusPending         OrderItemStatus = "pending"
	OrderItemStatusShipped         OrderItemStatus = "shipped"
	OrderItemStatusReturnRequested OrderItemStatus = "return_requested"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusPending,
	OrderItemStatusShipped,
	OrderItemStatusReturnRequested,
}

// String implements fmt.Stringer.
func (s OrderItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderItemStatus.
func (s OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderItemStatus converts raw input into an OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}
