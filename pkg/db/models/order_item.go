package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// OrderItem is one Channel order line mapped onto a vendor product.
type OrderItem struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VendorStoreID     uuid.UUID             `gorm:"column:vendor_store_id;type:uuid;not null"`
	SKU               string                `gorm:"column:sku;not null"`
	ChannelLineNumber string                `gorm:"column:channel_line_number;not null"`
	ProductName       string                `gorm:"column:product_name;not null"`
	Qty               int                   `gorm:"column:qty;not null"`
	UnitPriceCents    int                   `gorm:"column:unit_price_cents;not null"`
	CommissionRate    decimal.Decimal       `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	CommissionCents   int                   `gorm:"column:commission_cents;not null"`
	VendorPayoutCents int                   `gorm:"column:vendor_payout_cents;not null"`
	Status            enums.OrderItemStatus `gorm:"column:status;not null"`
	Carrier           *string               `gorm:"column:carrier"`
	TrackingNumber    *string               `gorm:"column:tracking_number"`
	TrackingURL       *string               `gorm:"column:tracking_url"`
	ShippedAt         *time.Time            `gorm:"column:shipped_at"`
	ChannelShippedAt  *time.Time            `gorm:"column:channel_shipped_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotalCents is the Channel sale price for the whole line.
func (i OrderItem) LineTotalCents() int {
	return i.UnitPriceCents * i.Qty
}
