package enums

import "fmt"

// ChannelOrderStatus tracks what the Channel has been told about a purchase order.
type ChannelOrderStatus string

const (
	ChannelOrderStatusCreated      ChannelOrderStatus = "created"
	ChannelOrderStatusAcknowledged ChannelOrderStatus = "acknowledged"
	ChannelOrderStatusShipped      ChannelOrderStatus = "shipped"
)

var validChannelOrderStatuses = []ChannelOrderStatus{
	ChannelOrderStatusCreated,
	ChannelOrderStatusAcknowledged,
	ChannelOrderStatusShipped,
}

// String implements fmt.Stringer.
func (s ChannelOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ChannelOrderStatus.
func (s ChannelOrderStatus) IsValid() bool {
	for _, candidate := range validChannelOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the record may move from s to next.
// Records only move forward; acknowledgement may be skipped when the
// shipment is confirmed first.
func (s ChannelOrderStatus) CanTransitionTo(next ChannelOrderStatus) bool {
	switch s {
	case ChannelOrderStatusCreated:
		return next == ChannelOrderStatusAcknowledged || next == ChannelOrderStatusShipped
	case ChannelOrderStatusAcknowledged:
		return next == ChannelOrderStatusShipped
	default:
		return false
	}
}

// ParseChannelOrderStatus converts raw input into a ChannelOrderStatus.
func ParseChannelOrderStatus(value string) (ChannelOrderStatus, error) {
	for _, candidate := range validChannelOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid channel order status %q", value)
}
