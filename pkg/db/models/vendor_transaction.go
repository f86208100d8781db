package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// VendorTransaction is one signed ledger entry owed to (or clawed back from) a vendor.
// Each order line carries at most one sale and at most one deduction per return.
type VendorTransaction struct {
	ID                   uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	VendorStoreID        uuid.UUID                     `gorm:"column:vendor_store_id;type:uuid;not null"`
	OrderID              uuid.UUID                     `gorm:"column:order_id;type:uuid;not null"`
	OrderItemID          uuid.UUID                     `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_vendor_transactions_item_sale,where:type = 'sale';uniqueIndex:ux_vendor_transactions_item_return,where:type = 'return_deduction'"`
	Type                 enums.VendorTransactionType   `gorm:"column:type;not null"`
	AmountCents          int                           `gorm:"column:amount_cents;not null"`
	Status               enums.VendorTransactionStatus `gorm:"column:status;not null"`
	PayoutDate           time.Time                     `gorm:"column:payout_date;not null"`
	RelatedTransactionID *uuid.UUID                    `gorm:"column:related_transaction_id;type:uuid"`
	ReturnID             *uuid.UUID                    `gorm:"column:return_id;type:uuid;uniqueIndex:ux_vendor_transactions_item_return,where:type = 'return_deduction'"`
	PaidOutAt            *time.Time                    `gorm:"column:paid_out_at"`
	CreatedAt            time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *VendorTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
