package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateChannelOrder      OutboxAggregateType = "channel_order"
	AggregateVendorTransaction OutboxAggregateType = "vendor_transaction"
	AggregateChannelReturn     OutboxAggregateType = "channel_return"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateChannelOrder,
	AggregateVendorTransaction,
	AggregateChannelReturn,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventChannelOrderImported   OutboxEventType = "channel_order_imported"
	EventChannelOrderShipped    OutboxEventType = "channel_order_shipped"
	EventVendorSaleRecorded     OutboxEventType = "vendor_sale_recorded"
	EventVendorSaleCancelled    OutboxEventType = "vendor_sale_cancelled"
	EventVendorDeductionCreated OutboxEventType = "vendor_deduction_recorded"
	EventVendorPayoutSettled    OutboxEventType = "vendor_payout_settled"
	EventChannelReturnReceived  OutboxEventType = "channel_return_received"
)

var validOutboxEventTypes = []OutboxEventType{
	EventChannelOrderImported,
	EventChannelOrderShipped,
	EventVendorSaleRecorded,
	EventVendorSaleCancelled,
	EventVendorDeductionCreated,
	EventVendorPayoutSettled,
	EventChannelReturnReceived,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
