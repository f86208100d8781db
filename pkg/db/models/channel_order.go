package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// ChannelOrder records that a Channel purchase order was imported, keeping
// the raw payload for audit. purchase_order_id is unique.
type ChannelOrder struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseOrderID string                   `gorm:"column:purchase_order_id;not null;uniqueIndex:ux_channel_orders_purchase_order_id"`
	CustomerOrderID string                   `gorm:"column:customer_order_id"`
	OrderID         uuid.UUID                `gorm:"column:order_id;type:uuid;not null"`
	Status          enums.ChannelOrderStatus `gorm:"column:status;not null"`
	RawPayload      datatypes.JSON           `gorm:"column:raw_payload;type:jsonb;not null"`
	OrderDate       time.Time                `gorm:"column:order_date;not null"`
	AcknowledgedAt  *time.Time               `gorm:"column:acknowledged_at"`
	ShippedAt       *time.Time               `gorm:"column:shipped_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelOrder) TableName() string {
	return "channel_orders"
}

func (c *ChannelOrder) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
