package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the marketplace listing a Channel SKU resolves to. The marketplace
// owns the row; channel sync only reads prices and flips ChannelListed.
type Product struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID             uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	SKU                 string    `gorm:"column:sku;not null"`
	Title               string    `gorm:"column:title;not null"`
	PriceCents          int       `gorm:"column:price_cents;not null"`
	WholesalePriceCents *int      `gorm:"column:wholesale_price_cents"`
	IsActive            bool      `gorm:"column:is_active;not null"`
	ChannelListed       bool      `gorm:"column:channel_listed;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
