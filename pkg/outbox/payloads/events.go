package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// ChannelOrderImportedEvent is emitted once a purchase order becomes a marketplace order.
type ChannelOrderImportedEvent struct {
	ChannelOrderID  uuid.UUID   `json:"channel_order_id"`
	OrderID         uuid.UUID   `json:"order_id"`
	PurchaseOrderID string      `json:"purchase_order_id"`
	VendorStoreIDs  []uuid.UUID `json:"vendor_store_ids"`
	ItemCount       int         `json:"item_count"`
	TotalCents      int         `json:"total_cents"`
}

// ChannelOrderShippedEvent fires when every line of a purchase order is confirmed shipped on the Channel.
type ChannelOrderShippedEvent struct {
	ChannelOrderID  uuid.UUID `json:"channel_order_id"`
	OrderID         uuid.UUID `json:"order_id"`
	PurchaseOrderID string    `json:"purchase_order_id"`
	ShippedAt       time.Time `json:"shipped_at"`
}

// VendorTransactionEvent describes a ledger entry change.
type VendorTransactionEvent struct {
	TransactionID uuid.UUID                     `json:"transaction_id"`
	VendorStoreID uuid.UUID                     `json:"vendor_store_id"`
	OrderID       uuid.UUID                     `json:"order_id"`
	OrderItemID   uuid.UUID                     `json:"order_item_id"`
	Type          enums.VendorTransactionType   `json:"type"`
	Status        enums.VendorTransactionStatus `json:"status"`
	AmountCents   int                           `json:"amount_cents"`
	PayoutDate    time.Time                     `json:"payout_date"`
}

// ChannelReturnReceivedEvent reports a Channel return and what it did to the ledger.
type ChannelReturnReceivedEvent struct {
	ReturnID        uuid.UUID                 `json:"return_id"`
	ReturnOrderID   string                    `json:"return_order_id"`
	PurchaseOrderID string                    `json:"purchase_order_id"`
	OrderID         *uuid.UUID                `json:"order_id,omitempty"`
	OrderItemID     *uuid.UUID                `json:"order_item_id,omitempty"`
	RefundCents     int                       `json:"refund_cents"`
	LedgerOutcome   enums.ReturnLedgerOutcome `json:"ledger_outcome"`
}
