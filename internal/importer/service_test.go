package importer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/orders"
	"github.com/angelmondragon/packfinderz-channelsync/internal/products"
	"github.com/angelmondragon/packfinderz-channelsync/internal/syncruns"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
)

var importTime = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

type fakeGateway struct {
	released []channel.RawOrder
	fetchErr error
	ackErr   error
	acked    []string
}

func (f *fakeGateway) GetReleasedOrders(context.Context, channel.Window) ([]channel.RawOrder, error) {
	return f.released, f.fetchErr
}

func (f *fakeGateway) Acknowledge(_ context.Context, purchaseOrderID string) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, purchaseOrderID)
	return nil
}

type fixedWindow struct{}

func (fixedWindow) Window(context.Context, string, syncruns.WindowPolicy) (channel.Window, error) {
	return channel.Window{Start: importTime.Add(-24 * time.Hour), End: importTime}, nil
}

type harness struct {
	svc     *Service
	gateway *fakeGateway
	conn    *gorm.DB
	orders  orders.Repository
	events  *outbox.Repository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	gateway := &fakeGateway{}
	events := outbox.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Logger:    logger.Nop(),
		DB:        client,
		Gateway:   gateway,
		Orders:    orderRepo,
		Products:  products.NewRepository(conn),
		Outbox:    outbox.NewService(events, nil),
		Windows:   fixedWindow{},
		SKUPrefix: "PFZ-",
		Now:       func() time.Time { return importTime },
	})
	require.NoError(t, err)
	return harness{svc: svc, gateway: gateway, conn: conn, orders: orderRepo, events: events}
}

func rawOrder(po string, lines ...channel.OrderLine) channel.RawOrder {
	return channel.RawOrder{
		PurchaseOrderID: po,
		CustomerOrderID: "C-" + po,
		OrderDate:       importTime.Add(-time.Hour),
		ShippingInfo: channel.ShippingInfo{
			Phone: "5551234567",
			PostalAddress: channel.PostalAddress{
				Name:       "Dana Buyer",
				Address1:   "1 Main St",
				City:       "Tulsa",
				State:      "OK",
				PostalCode: "74103",
				Country:    "US",
			},
		},
		OrderLines: lines,
	}
}

func line(number, sku string, qty int, price string) channel.OrderLine {
	return channel.OrderLine{
		LineNumber:     number,
		SKU:            sku,
		Quantity:       qty,
		UnitPrice:      decimal.RequireFromString(price),
		ShippingCharge: decimal.RequireFromString("1.50"),
	}
}

func TestRunImportsOrderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, h.conn, models.Product{SKU: "GUMMY-1", PriceCents: 4000, IsActive: true, ChannelListed: true})
	h.gateway.released = []channel.RawOrder{rawOrder("PO-1", line("1", "PFZ-GUMMY-1", 2, "30.00"))}

	summary, err := h.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{"PO-1"}, h.gateway.acked)

	record, err := h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-1")
	require.NoError(t, err)
	assert.Equal(t, enums.ChannelOrderStatusAcknowledged, record.Status)
	assert.NotNil(t, record.AcknowledgedAt)

	var order models.Order
	require.NoError(t, h.conn.Preload("Items").Preload("ShippingAddress").First(&order, "id = ?", record.OrderID).Error)
	assert.Equal(t, "channel", order.Source)
	assert.Equal(t, 6000, order.SubtotalCents)
	assert.Equal(t, 150, order.ShippingCents)
	assert.Equal(t, 6150, order.TotalCents)
	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, product.ID, item.ProductID)
	assert.Equal(t, product.StoreID, item.VendorStoreID)
	assert.Equal(t, "GUMMY-1", item.SKU)
	assert.Equal(t, 3000, item.UnitPriceCents)
	assert.Equal(t, 6800, item.VendorPayoutCents)
	assert.Equal(t, -800, item.CommissionCents)
	assert.Equal(t, enums.OrderItemStatusPending, item.Status)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Tulsa", order.ShippingAddress.City)

	count, err := h.events.CountByType(enums.EventChannelOrderImported)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	summary, err = h.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)

	var orderCount int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
}

func TestImportDropsUnknownSKUs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, h.conn, models.Product{SKU: "VAPE-9", PriceCents: 5000, IsActive: true, ChannelListed: true})

	result := h.svc.ImportOrder(ctx, rawOrder("PO-2",
		line("1", "PFZ-VAPE-9", 1, "50.00"),
		line("2", "PFZ-MISSING", 1, "12.00"),
	))
	require.Equal(t, batch.OutcomeSucceeded, result.Outcome)

	record, err := h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-2")
	require.NoError(t, err)
	var lines []string
	require.NoError(t, h.conn.Model(&models.OrderItem{}).Where("order_id = ?", record.OrderID).Pluck("channel_line_number", &lines).Error)
	assert.Equal(t, []string{"1"}, lines)
}

func TestImportStoresCommissionSplit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, h.conn, models.Product{SKU: "FLOWER-7", PriceCents: 5000, IsActive: true, ChannelListed: true})
	wholesale := 1200
	dbtest.SeedProduct(t, h.conn, models.Product{SKU: "CART-7", PriceCents: 3000, WholesalePriceCents: &wholesale, IsActive: true, ChannelListed: true})

	result := h.svc.ImportOrder(ctx, rawOrder("PO-7",
		line("1", "PFZ-FLOWER-7", 1, "50.00"),
		line("2", "PFZ-CART-7", 2, "20.00"),
	))
	require.Equal(t, batch.OutcomeSucceeded, result.Outcome)

	record, err := h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-7")
	require.NoError(t, err)
	var items []models.OrderItem
	require.NoError(t, h.conn.Where("order_id = ?", record.OrderID).Order("channel_line_number").Find(&items).Error)
	require.Len(t, items, 2)

	retail := items[0]
	assert.True(t, retail.CommissionRate.Equal(decimal.RequireFromString("0.15")), retail.CommissionRate.String())
	assert.Equal(t, 750, retail.CommissionCents)
	assert.Equal(t, 4250, retail.VendorPayoutCents)

	wholesaleLine := items[1]
	assert.Equal(t, 2400, wholesaleLine.VendorPayoutCents)
	assert.Equal(t, 1600, wholesaleLine.CommissionCents)
	assert.True(t, wholesaleLine.CommissionRate.Equal(decimal.RequireFromString("0.4")), wholesaleLine.CommissionRate.String())
}

func TestImportSkipsOrderWithNoKnownSKU(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.svc.ImportOrder(ctx, rawOrder("PO-3", line("1", "PFZ-NOPE", 1, "10.00")))
	assert.Equal(t, batch.OutcomeSkipped, result.Outcome)

	_, err := h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-3")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, h.gateway.acked)
}

func TestImportSkipsInvalidOrder(t *testing.T) {
	h := newHarness(t)
	raw := rawOrder("PO-4")

	result := h.svc.ImportOrder(context.Background(), raw)
	assert.Equal(t, batch.OutcomeSkipped, result.Outcome)
}

func TestAcknowledgeFailureIsRetriedNextRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, h.conn, models.Product{SKU: "TINCT-2", PriceCents: 2500, IsActive: true, ChannelListed: true})
	h.gateway.released = []channel.RawOrder{rawOrder("PO-5", line("1", "PFZ-TINCT-2", 1, "25.00"))}
	h.gateway.ackErr = pkgerrors.New(pkgerrors.CodeDependency, "channel unavailable")

	summary, err := h.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	record, err := h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-5")
	require.NoError(t, err)
	assert.Equal(t, enums.ChannelOrderStatusCreated, record.Status)

	h.gateway.ackErr = nil
	h.gateway.released = nil
	_, err = h.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PO-5"}, h.gateway.acked)

	record, err = h.orders.FindChannelOrderByPurchaseOrderID(ctx, "PO-5")
	require.NoError(t, err)
	assert.Equal(t, enums.ChannelOrderStatusAcknowledged, record.Status)
}

func TestRunReturnsFetchError(t *testing.T) {
	h := newHarness(t)
	h.gateway.fetchErr = pkgerrors.New(pkgerrors.CodeMalformedFeed, "bad body")

	_, err := h.svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedFeed))
}

func TestRunSkipsDuplicatesInFeed(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, models.Product{SKU: "PRE-1", PriceCents: 1000, IsActive: true, ChannelListed: true})
	order := rawOrder("PO-6", line("1", "PFZ-PRE-1", 1, "10.00"))
	h.gateway.released = []channel.RawOrder{order, order}

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without db runner")
	}
}
