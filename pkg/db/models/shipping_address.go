package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShippingAddress is the immutable ship-to snapshot taken at import.
type ShippingAddress struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	Phone      *string   `gorm:"column:phone"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      *string   `gorm:"column:line2"`
	City       string    `gorm:"column:city;not null"`
	State      string    `gorm:"column:state;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Country    string    `gorm:"column:country;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (a *ShippingAddress) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
