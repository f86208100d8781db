package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// ChannelReturn mirrors a Channel-initiated return. Rows are stored even when
// the purchase order cannot be resolved so the audit trail stays complete.
type ChannelReturn struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ReturnOrderID   string                    `gorm:"column:return_order_id;not null;uniqueIndex:ux_channel_returns_return_order_id"`
	PurchaseOrderID string                    `gorm:"column:purchase_order_id;not null"`
	OrderID         *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	OrderItemID     *uuid.UUID                `gorm:"column:order_item_id;type:uuid"`
	SKU             string                    `gorm:"column:sku;not null"`
	Qty             int                       `gorm:"column:qty;not null"`
	RefundCents     int                       `gorm:"column:refund_cents;not null"`
	Reason          *string                   `gorm:"column:reason"`
	Status          enums.ReturnStatus        `gorm:"column:status;not null"`
	LedgerOutcome   enums.ReturnLedgerOutcome `gorm:"column:ledger_outcome;not null"`
	ReturnedAt      time.Time                 `gorm:"column:returned_at;not null"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelReturn) TableName() string {
	return "channel_returns"
}

func (r *ChannelReturn) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
