package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

func strPtr(v string) *string { return &v }

func shippedItem(sku, tracking string) models.OrderItem {
	shippedAt := time.Now().UTC().Add(-time.Hour)
	return models.OrderItem{
		SKU:            sku,
		UnitPriceCents: 1000,
		Status:         enums.OrderItemStatusShipped,
		Carrier:        strPtr("UPS"),
		TrackingNumber: strPtr(tracking),
		ShippedAt:      &shippedAt,
	}
}

func TestCreateOrderPersistsItemsAndAddress(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := &models.Order{
		Source:        "channel",
		Status:        enums.OrderStatusCreated,
		Currency:      "USD",
		SubtotalCents: 3000,
		TotalCents:    3000,
		Items: []models.OrderItem{
			{ProductID: uuid.New(), VendorStoreID: uuid.New(), SKU: "A-1", ChannelLineNumber: "1", ProductName: "A", Qty: 1, UnitPriceCents: 1000, CommissionRate: decimal.RequireFromString("0.15"), Status: enums.OrderItemStatusPending},
			{ProductID: uuid.New(), VendorStoreID: uuid.New(), SKU: "B-1", ChannelLineNumber: "2", ProductName: "B", Qty: 2, UnitPriceCents: 1000, CommissionRate: decimal.RequireFromString("0.15"), Status: enums.OrderItemStatusPending},
		},
		ShippingAddress: &models.ShippingAddress{Name: "Pat", Line1: "1 Main", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
	}
	require.NoError(t, repo.CreateOrder(ctx, order))
	require.NotEqual(t, uuid.Nil, order.ID)

	var itemCount, addressCount int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&itemCount).Error)
	require.NoError(t, db.Model(&models.ShippingAddress{}).Where("order_id = ?", order.ID).Count(&addressCount).Error)
	assert.Equal(t, int64(2), itemCount)
	assert.Equal(t, int64(1), addressCount)
}

func TestChannelOrderPurchaseOrderIDIsUnique(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := &models.ChannelOrder{PurchaseOrderID: "PO-1", OrderID: uuid.New(), Status: enums.ChannelOrderStatusCreated, RawPayload: datatypes.JSON(`{}`), OrderDate: time.Now().UTC()}
	require.NoError(t, repo.CreateChannelOrder(ctx, first))

	dup := &models.ChannelOrder{PurchaseOrderID: "PO-1", OrderID: uuid.New(), Status: enums.ChannelOrderStatusCreated, RawPayload: datatypes.JSON(`{}`), OrderDate: time.Now().UTC()}
	require.Error(t, repo.CreateChannelOrder(ctx, dup))

	found, err := repo.FindChannelOrderByPurchaseOrderID(ctx, "PO-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = repo.FindChannelOrderByPurchaseOrderID(ctx, "PO-404")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	existing, err := repo.ExistingPurchaseOrderIDs(ctx, []string{"PO-1", "PO-2"})
	require.NoError(t, err)
	assert.Contains(t, existing, "PO-1")
	assert.NotContains(t, existing, "PO-2")
}

func TestMarkChannelOrderAcknowledgedOnlyFromCreated(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	record := &models.ChannelOrder{PurchaseOrderID: "PO-7", OrderID: uuid.New(), Status: enums.ChannelOrderStatusCreated, RawPayload: datatypes.JSON(`{}`), OrderDate: time.Now().UTC()}
	require.NoError(t, repo.CreateChannelOrder(ctx, record))

	pending, err := repo.ListChannelOrdersByStatus(ctx, enums.ChannelOrderStatusCreated, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	updated, err := repo.MarkChannelOrderAcknowledged(ctx, record.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkChannelOrderAcknowledged(ctx, record.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, updated)

	pending, err = repo.ListChannelOrdersByStatus(ctx, enums.ChannelOrderStatusCreated, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListItemsAwaitingChannelShipment(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := dbtest.SeedImportedOrder(t, db, "PO-100",
		shippedItem("A-1", "1Z001"),
		models.OrderItem{SKU: "B-1", UnitPriceCents: 500},
		shippedItem("C-1", ""),
	)

	pending, err := repo.ListItemsAwaitingChannelShipment(ctx, 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, seeded.Items[0].ID, pending[0].Item.ID)
	assert.Equal(t, "PO-100", pending[0].PurchaseOrderID)
	assert.Equal(t, seeded.ChannelOrder.ID, pending[0].ChannelOrderID)

	at := time.Now().UTC()
	applied, err := repo.ApplyChannelShipment(ctx, seeded.Items[0].ID, ChannelShipmentUpdate{
		ChannelShippedAt:  at,
		TrackingURL:       strPtr("https://track.example/1Z001"),
		CommissionRate:    decimal.RequireFromString("0.2"),
		CommissionCents:   200,
		VendorPayoutCents: 800,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ApplyChannelShipment(ctx, seeded.Items[0].ID, ChannelShipmentUpdate{ChannelShippedAt: at})
	require.NoError(t, err)
	assert.False(t, applied)

	item, err := repo.FindItemByID(ctx, seeded.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 800, item.VendorPayoutCents)
	require.NotNil(t, item.TrackingURL)
	assert.Equal(t, "https://track.example/1Z001", *item.TrackingURL)

	pending, err = repo.ListItemsAwaitingChannelShipment(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, pending)

	remaining, err := repo.CountItemsNotOnChannel(ctx, seeded.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)
}

func TestCountItemsNotOnChannelIgnoresReturnedLines(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := dbtest.SeedImportedOrder(t, db, "PO-200", models.OrderItem{SKU: "A-1", UnitPriceCents: 500})
	returnedAt := time.Date(2026, 6, 3, 8, 30, 0, 0, time.UTC)
	require.NoError(t, repo.MarkItemReturnRequested(ctx, seeded.Items[0].ID, returnedAt))

	item, err := repo.FindItemByID(ctx, seeded.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderItemStatusReturnRequested, item.Status)
	assert.True(t, item.UpdatedAt.Equal(returnedAt), "updated_at %s", item.UpdatedAt)

	remaining, err := repo.CountItemsNotOnChannel(ctx, seeded.Order.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestApplyChannelShipmentSkipsReturnedLine(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := dbtest.SeedImportedOrder(t, db, "PO-210", shippedItem("A-1", "1Z210"))
	at := time.Now().UTC()
	require.NoError(t, repo.MarkItemReturnRequested(ctx, seeded.Items[0].ID, at))

	applied, err := repo.ApplyChannelShipment(ctx, seeded.Items[0].ID, ChannelShipmentUpdate{ChannelShippedAt: at, VendorPayoutCents: 850})
	require.NoError(t, err)
	assert.False(t, applied)

	item, err := repo.FindItemByID(ctx, seeded.Items[0].ID)
	require.NoError(t, err)
	assert.Nil(t, item.ChannelShippedAt)
	assert.Zero(t, item.VendorPayoutCents)
}

func TestListChannelOrdersReadyToClose(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	// one line confirmed, the other returned before it shipped
	ready := dbtest.SeedImportedOrder(t, db, "PO-220", shippedItem("A-1", "1Z220"), models.OrderItem{SKU: "B-1", UnitPriceCents: 500})
	// one line confirmed, the other still pending
	open := dbtest.SeedImportedOrder(t, db, "PO-221", shippedItem("A-1", "1Z221"), models.OrderItem{SKU: "B-1", UnitPriceCents: 500})
	// every line returned, nothing ever reached the Channel
	returned := dbtest.SeedImportedOrder(t, db, "PO-222", models.OrderItem{SKU: "A-1", UnitPriceCents: 500})

	for _, id := range []uuid.UUID{ready.Items[0].ID, open.Items[0].ID} {
		applied, err := repo.ApplyChannelShipment(ctx, id, ChannelShipmentUpdate{ChannelShippedAt: at})
		require.NoError(t, err)
		require.True(t, applied)
	}
	require.NoError(t, repo.MarkItemReturnRequested(ctx, ready.Items[1].ID, at))
	require.NoError(t, repo.MarkItemReturnRequested(ctx, returned.Items[0].ID, at))

	rows, err := repo.ListChannelOrdersReadyToClose(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ready.ChannelOrder.ID, rows[0].ID)

	_, err = repo.MarkChannelOrderShipped(ctx, ready.ChannelOrder.ID, at)
	require.NoError(t, err)
	rows, err = repo.ListChannelOrdersReadyToClose(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindItemByOrderAndLineOrSKU(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := dbtest.SeedImportedOrder(t, db, "PO-300",
		models.OrderItem{SKU: "A-1", ChannelLineNumber: "1", UnitPriceCents: 500},
		models.OrderItem{SKU: "B-1", ChannelLineNumber: "2", UnitPriceCents: 700},
	)

	byLine, err := repo.FindItemByOrderAndLine(ctx, seeded.Order.ID, "2")
	require.NoError(t, err)
	assert.Equal(t, "B-1", byLine.SKU)

	bySKU, err := repo.FindItemByOrderAndSKU(ctx, seeded.Order.ID, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "1", bySKU.ChannelLineNumber)

	_, err = repo.FindItemByOrderAndLine(ctx, seeded.Order.ID, "9")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarkChannelOrderAndOrderShipped(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := dbtest.SeedImportedOrder(t, db, "PO-400", models.OrderItem{SKU: "A-1", UnitPriceCents: 500})
	at := time.Now().UTC()

	updated, err := repo.MarkChannelOrderShipped(ctx, seeded.ChannelOrder.ID, at)
	require.NoError(t, err)
	assert.True(t, updated)
	updated, err = repo.MarkChannelOrderShipped(ctx, seeded.ChannelOrder.ID, at)
	require.NoError(t, err)
	assert.False(t, updated)

	require.NoError(t, repo.MarkOrderShipped(ctx, seeded.Order.ID, at))
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", seeded.Order.ID).Error)
	assert.Equal(t, enums.OrderStatusShipped, order.Status)
	assert.NotNil(t, order.ShippedAt)
}
