package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelInventoryAllocation is the quantity a vendor has set aside for the Channel.
type ChannelInventoryAllocation struct {
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	VendorStoreID uuid.UUID `gorm:"column:vendor_store_id;type:uuid;not null"`
	AllocatedQty  int       `gorm:"column:allocated_qty;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelInventoryAllocation) TableName() string {
	return "channel_inventory_allocations"
}
