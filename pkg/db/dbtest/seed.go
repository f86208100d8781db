package dbtest

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// SeedProduct inserts p, filling StoreID and Title when empty.
func SeedProduct(t testing.TB, conn *gorm.DB, p models.Product) models.Product {
	t.Helper()
	if p.StoreID == uuid.Nil {
		p.StoreID = uuid.New()
	}
	if p.Title == "" {
		p.Title = "Product " + p.SKU
	}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("seed product %s: %v", p.SKU, err)
	}
	return p
}

// ImportedOrder is the row set an import leaves behind.
type ImportedOrder struct {
	Order        models.Order
	ChannelOrder models.ChannelOrder
	Items        []models.OrderItem
}

// SeedImportedOrder inserts an order, its items and an acknowledged channel
// order for purchaseOrderID. Item defaults: pending status, qty 1, the
// default commission rate.
func SeedImportedOrder(t testing.TB, conn *gorm.DB, purchaseOrderID string, items ...models.OrderItem) ImportedOrder {
	t.Helper()
	order := models.Order{
		Source:   "channel",
		Status:   enums.OrderStatusCreated,
		Currency: "USD",
	}
	for _, item := range items {
		q := item.Qty
		if q == 0 {
			q = 1
		}
		order.SubtotalCents += item.UnitPriceCents * q
	}
	order.TotalCents = order.SubtotalCents
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	created := make([]models.OrderItem, 0, len(items))
	for i, item := range items {
		item.OrderID = order.ID
		if item.Qty == 0 {
			item.Qty = 1
		}
		if item.Status == "" {
			item.Status = enums.OrderItemStatusPending
		}
		if item.VendorStoreID == uuid.Nil {
			item.VendorStoreID = uuid.New()
		}
		if item.ProductID == uuid.Nil {
			item.ProductID = uuid.New()
		}
		if item.ChannelLineNumber == "" {
			item.ChannelLineNumber = strconv.Itoa(i + 1)
		}
		if item.ProductName == "" {
			item.ProductName = "Item " + item.SKU
		}
		if item.CommissionRate.IsZero() && item.VendorPayoutCents == 0 {
			item.CommissionRate = decimal.RequireFromString("0.15")
		}
		if err := conn.Create(&item).Error; err != nil {
			t.Fatalf("seed order item: %v", err)
		}
		created = append(created, item)
	}

	acked := time.Now().UTC()
	channelOrder := models.ChannelOrder{
		PurchaseOrderID: purchaseOrderID,
		CustomerOrderID: "C-" + purchaseOrderID,
		OrderID:         order.ID,
		Status:          enums.ChannelOrderStatusAcknowledged,
		RawPayload:      datatypes.JSON(`{}`),
		OrderDate:       acked.Add(-time.Hour),
		AcknowledgedAt:  &acked,
	}
	if err := conn.Create(&channelOrder).Error; err != nil {
		t.Fatalf("seed channel order: %v", err)
	}
	order.Items = created
	return ImportedOrder{Order: order, ChannelOrder: channelOrder, Items: created}
}
