package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// Order is the marketplace-native order created for a Channel purchase order.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Source          string            `gorm:"column:source;not null"`
	Status          enums.OrderStatus `gorm:"column:status;not null"`
	Currency        string            `gorm:"column:currency;not null"`
	SubtotalCents   int               `gorm:"column:subtotal_cents;not null"`
	ShippingCents   int               `gorm:"column:shipping_cents;not null"`
	TotalCents      int               `gorm:"column:total_cents;not null"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID"`
	ShippingAddress *ShippingAddress  `gorm:"foreignKey:OrderID"`
	ShippedAt       *time.Time        `gorm:"column:shipped_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
