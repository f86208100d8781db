// Package importer turns released Channel purchase orders into marketplace orders.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/commission"
	"github.com/angelmondragon/packfinderz-channelsync/internal/orders"
	"github.com/angelmondragon/packfinderz-channelsync/internal/products"
	"github.com/angelmondragon/packfinderz-channelsync/internal/syncruns"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	dbpkg "github.com/angelmondragon/packfinderz-channelsync/pkg/db"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox/payloads"
)

// JobName identifies the importer in the run log and on the command line.
const JobName = "order-import"

const (
	orderSource        = "channel"
	defaultCurrency    = "USD"
	defaultServiceName = "channel-sync"
	ackBatchLimit      = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the Channel client the importer calls.
type Gateway interface {
	GetReleasedOrders(ctx context.Context, window channel.Window) ([]channel.RawOrder, error)
	Acknowledge(ctx context.Context, purchaseOrderID string) error
}

type windowSource interface {
	Window(ctx context.Context, job string, policy syncruns.WindowPolicy) (channel.Window, error)
}

// ServiceParams wire the importer.
type ServiceParams struct {
	Logger          *logger.Logger
	DB              txRunner
	Gateway         Gateway
	Orders          orders.Repository
	Products        products.Repository
	Outbox          outbox.Emitter
	Windows         windowSource
	WindowPolicy    syncruns.WindowPolicy
	Calculator      *commission.Calculator
	SKUPrefix       string
	ServiceName     string
	SkipAcknowledge bool
	Now             func() time.Time
}

// Service imports released purchase orders exactly once each.
type Service struct {
	logg      *logger.Logger
	db        txRunner
	gateway   Gateway
	orders    orders.Repository
	products  products.Repository
	outbox    outbox.Emitter
	windows   windowSource
	policy    syncruns.WindowPolicy
	calc      commission.Calculator
	skuPrefix string
	source    *outbox.Source
	skipAck   bool
	now       func() time.Time
}

// NewService builds the importer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("channel gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Windows == nil {
		return nil, fmt.Errorf("window source required")
	}
	calc := params.Calculator
	if calc == nil {
		def, err := commission.NewCalculator(commission.DefaultRate)
		if err != nil {
			return nil, err
		}
		calc = &def
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	serviceName := params.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	return &Service{
		logg:      params.Logger,
		db:        params.DB,
		gateway:   params.Gateway,
		orders:    params.Orders,
		products:  params.Products,
		outbox:    params.Outbox,
		windows:   params.Windows,
		policy:    params.WindowPolicy,
		calc:      *calc,
		skuPrefix: params.SKUPrefix,
		source:    &outbox.Source{Service: serviceName, Job: JobName},
		skipAck:   params.SkipAcknowledge,
		now:       now,
	}, nil
}

func (s *Service) Name() string { return JobName }

// Run retries outstanding acknowledgements, then imports every purchase
// order released inside the window. Fetch failures abort the run; per-order
// problems land in the summary.
func (s *Service) Run(ctx context.Context) (batch.Summary, error) {
	var summary batch.Summary

	if !s.skipAck {
		s.retryAcknowledgements(ctx)
	}

	window, err := s.windows.Window(ctx, JobName, s.policy)
	if err != nil {
		return summary, fmt.Errorf("derive import window: %w", err)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"window_start": window.Start,
		"window_end":   window.End,
	})

	released, err := s.gateway.GetReleasedOrders(logCtx, window)
	if err != nil {
		return summary, err
	}
	sort.SliceStable(released, func(i, j int) bool {
		if released[i].OrderDate.Equal(released[j].OrderDate) {
			return released[i].PurchaseOrderID < released[j].PurchaseOrderID
		}
		return released[i].OrderDate.Before(released[j].OrderDate)
	})

	ids := make([]string, 0, len(released))
	for _, raw := range released {
		ids = append(ids, raw.PurchaseOrderID)
	}
	existing, err := s.orders.ExistingPurchaseOrderIDs(logCtx, ids)
	if err != nil {
		return summary, fmt.Errorf("check imported purchase orders: %w", err)
	}

	seen := make(map[string]struct{}, len(released))
	for _, raw := range released {
		if _, ok := existing[raw.PurchaseOrderID]; ok {
			summary.Add(batch.Skipped(raw.PurchaseOrderID, "already imported"))
			continue
		}
		if _, ok := seen[raw.PurchaseOrderID]; ok {
			summary.Add(batch.Skipped(raw.PurchaseOrderID, "duplicate in feed"))
			continue
		}
		seen[raw.PurchaseOrderID] = struct{}{}
		summary.Add(s.ImportOrder(logCtx, raw))
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"fetched":  len(released),
		"imported": summary.Succeeded,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}), "order import complete")
	return summary, nil
}

// ImportOrder writes one purchase order and acknowledges it on the Channel.
func (s *Service) ImportOrder(ctx context.Context, raw channel.RawOrder) batch.ItemResult {
	key := raw.PurchaseOrderID
	ctx = s.logg.WithPurchaseOrderID(ctx, key)

	if err := raw.Validate(); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "skipping invalid purchase order")
		return batch.Skipped(key, err.Error())
	}

	order, err := s.buildOrder(ctx, raw)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeMapping) {
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "skipping unmappable purchase order")
			return batch.Skipped(key, err.Error())
		}
		return batch.Failed(key, err)
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return batch.Failed(key, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode raw payload"))
	}
	channelOrder := &models.ChannelOrder{
		PurchaseOrderID: raw.PurchaseOrderID,
		CustomerOrderID: raw.CustomerOrderID,
		Status:          enums.ChannelOrderStatusCreated,
		RawPayload:      datatypes.JSON(payload),
		OrderDate:       raw.OrderDate.UTC(),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		channelOrder.OrderID = order.ID
		if err := repo.CreateChannelOrder(ctx, channelOrder); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChannelOrderImported,
			AggregateType: enums.AggregateChannelOrder,
			AggregateID:   channelOrder.ID,
			Source:        s.source,
			OccurredAt:    s.now().UTC(),
			Data: payloads.ChannelOrderImportedEvent{
				ChannelOrderID:  channelOrder.ID,
				OrderID:         order.ID,
				PurchaseOrderID: raw.PurchaseOrderID,
				VendorStoreIDs:  vendorStoreIDs(order.Items),
				ItemCount:       len(order.Items),
				TotalCents:      order.TotalCents,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return batch.Skipped(key, "already imported")
		}
		return batch.Failed(key, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist imported order"))
	}

	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "purchase order imported")
	if !s.skipAck {
		s.acknowledge(ctx, channelOrder)
	}
	return batch.Succeeded(key)
}

// buildOrder resolves the order's lines to products. Lines whose SKU matches
// no product are dropped. Each line carries the commission split at the sale
// price; tracking recomputes it when the line ships.
func (s *Service) buildOrder(ctx context.Context, raw channel.RawOrder) (*models.Order, error) {
	skus := make([]string, 0, len(raw.OrderLines))
	for _, line := range raw.OrderLines {
		skus = append(skus, channel.MarketplaceSKU(line.SKU, s.skuPrefix))
	}
	catalogue, err := s.products.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve skus")
	}

	order := &models.Order{
		Source:   orderSource,
		Status:   enums.OrderStatusCreated,
		Currency: defaultCurrency,
	}
	for i, line := range raw.OrderLines {
		product, ok := catalogue[skus[i]]
		if !ok {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"sku":         line.SKU,
				"line_number": line.LineNumber,
			}), "dropping order line with unknown sku")
			continue
		}
		unitCents := channel.Cents(line.UnitPrice)
		payout, err := s.calc.ComputePayout(commission.Pricing{
			RetailCents:    product.PriceCents,
			WholesaleCents: product.WholesalePriceCents,
		}, unitCents, line.Quantity)
		if err != nil {
			return nil, err
		}
		if line.Currency != "" {
			order.Currency = line.Currency
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:         product.ID,
			VendorStoreID:     product.StoreID,
			SKU:               product.SKU,
			ChannelLineNumber: line.LineNumber,
			ProductName:       productName(line, product),
			Qty:               line.Quantity,
			UnitPriceCents:    unitCents,
			CommissionRate:    payout.Rate,
			CommissionCents:   payout.PlatformCents,
			VendorPayoutCents: payout.VendorCents,
			Status:            enums.OrderItemStatusPending,
		})
		order.SubtotalCents += unitCents * line.Quantity
		order.ShippingCents += channel.Cents(line.ShippingCharge)
	}
	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMapping, "no order line matched a marketplace product")
	}
	order.TotalCents = order.SubtotalCents + order.ShippingCents
	order.ShippingAddress = shippingAddress(raw.ShippingInfo)
	return order, nil
}

// retryAcknowledgements re-sends acknowledgements for orders whose earlier
// acknowledge call failed.
func (s *Service) retryAcknowledgements(ctx context.Context) {
	pending, err := s.orders.ListChannelOrdersByStatus(ctx, enums.ChannelOrderStatusCreated, ackBatchLimit)
	if err != nil {
		s.logg.Error(ctx, "failed to list unacknowledged purchase orders", err)
		return
	}
	for i := range pending {
		s.acknowledge(s.logg.WithPurchaseOrderID(ctx, pending[i].PurchaseOrderID), &pending[i])
	}
}

func (s *Service) acknowledge(ctx context.Context, channelOrder *models.ChannelOrder) {
	if err := s.gateway.Acknowledge(ctx, channelOrder.PurchaseOrderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "acknowledge failed; will retry next run")
		return
	}
	if _, err := s.orders.MarkChannelOrderAcknowledged(ctx, channelOrder.ID, s.now().UTC()); err != nil {
		s.logg.Error(ctx, "failed to record acknowledgement", err)
	}
}

func productName(line channel.OrderLine, product models.Product) string {
	if line.ProductName != "" {
		return line.ProductName
	}
	return product.Title
}

func shippingAddress(info channel.ShippingInfo) *models.ShippingAddress {
	addr := info.PostalAddress
	return &models.ShippingAddress{
		Name:       addr.Name,
		Phone:      optional(info.Phone),
		Line1:      addr.Address1,
		Line2:      optional(addr.Address2),
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func vendorStoreIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VendorStoreID]; ok {
			continue
		}
		seen[item.VendorStoreID] = struct{}{}
		ids = append(ids, item.VendorStoreID)
	}
	return ids
}
