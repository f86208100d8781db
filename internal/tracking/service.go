// Package tracking pushes vendor shipment tracking to the Channel and books
// the vendor sale once the Channel has accepted it.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/commission"
	"github.com/angelmondragon/packfinderz-channelsync/internal/ledger"
	"github.com/angelmondragon/packfinderz-channelsync/internal/orders"
	"github.com/angelmondragon/packfinderz-channelsync/internal/products"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox/payloads"
)

// JobName identifies the synchronizer in the run log and on the command line.
const JobName = "tracking-sync"

const (
	defaultBatchLimit  = 500
	defaultServiceName = "channel-sync"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the Channel client the synchronizer calls.
type Gateway interface {
	ShipLines(ctx context.Context, purchaseOrderID string, lines []channel.LineShipment) error
}

// ServiceParams wire the synchronizer.
type ServiceParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Gateway     Gateway
	Orders      orders.Repository
	Products    products.Repository
	Ledger      ledger.Service
	Calculator  *commission.Calculator
	Outbox      outbox.Emitter
	BatchLimit  int
	ServiceName string
	Now         func() time.Time
}

// Service confirms vendor shipments on the Channel.
type Service struct {
	logg       *logger.Logger
	db         txRunner
	gateway    Gateway
	orders     orders.Repository
	products   products.Repository
	ledger     ledger.Service
	calc       commission.Calculator
	outbox     outbox.Emitter
	batchLimit int
	source     *outbox.Source
	now        func() time.Time
}

// NewService builds the synchronizer.
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
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	calc := params.Calculator
	if calc == nil {
		def, err := commission.NewCalculator(commission.DefaultRate)
		if err != nil {
			return nil, err
		}
		calc = &def
	}
	limit := params.BatchLimit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	serviceName := params.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:       params.Logger,
		db:         params.DB,
		gateway:    params.Gateway,
		orders:     params.Orders,
		products:   params.Products,
		ledger:     params.Ledger,
		calc:       *calc,
		outbox:     params.Outbox,
		batchLimit: limit,
		source:     &outbox.Source{Service: serviceName, Job: JobName},
		now:        now,
	}, nil
}

func (s *Service) Name() string { return JobName }

type purchaseOrderGroup struct {
	purchaseOrderID string
	channelOrderID  uuid.UUID
	orderID         uuid.UUID
	lines           []orders.PendingShipment
}

// Run pushes every shipped-but-unconfirmed line, grouped by purchase order in
// creation order. A failing line is counted and the batch moves on.
func (s *Service) Run(ctx context.Context) (batch.Summary, error) {
	var summary batch.Summary

	pending, err := s.orders.ListItemsAwaitingChannelShipment(ctx, s.batchLimit)
	if err != nil {
		return summary, fmt.Errorf("list shipped items: %w", err)
	}

	for _, group := range groupByPurchaseOrder(pending) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		groupCtx := s.logg.WithPurchaseOrderID(ctx, group.purchaseOrderID)
		for _, line := range group.lines {
			summary.Add(s.SyncLine(groupCtx, line))
		}
	}

	if err := s.closeReadyOrders(ctx); err != nil {
		return summary, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"lines":     summary.Processed,
		"confirmed": summary.Succeeded,
		"failed":    summary.Failed,
	}), "tracking sync complete")
	return summary, nil
}

// SyncLine pushes one line's tracking and, once the Channel accepts it,
// computes the vendor split and records the sale in a single transaction.
func (s *Service) SyncLine(ctx context.Context, pending orders.PendingShipment) batch.ItemResult {
	item := pending.Item
	key := pending.PurchaseOrderID + "#" + item.ChannelLineNumber
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_item_id": item.ID.String(),
		"line_number":   item.ChannelLineNumber,
	})

	trackingNumber := strings.TrimSpace(deref(item.TrackingNumber))
	carrier := enums.MapCarrier(deref(item.Carrier))
	trackingURL := strings.TrimSpace(deref(item.TrackingURL))
	var defaultedURL *string
	if trackingURL == "" {
		if built := carrier.TrackingURL(trackingNumber); built != "" {
			trackingURL = built
			defaultedURL = &built
		}
	}
	shippedAt := s.now().UTC()
	if item.ShippedAt != nil {
		shippedAt = item.ShippedAt.UTC()
	}

	err := s.gateway.ShipLines(ctx, pending.PurchaseOrderID, []channel.LineShipment{{
		LineNumber:     item.ChannelLineNumber,
		Quantity:       item.Qty,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		TrackingURL:    trackingURL,
		ShippedAt:      shippedAt,
	}})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "channel rejected shipment line")
		return batch.Failed(key, err)
	}

	confirmedAt := s.now().UTC()
	applied := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.products.WithTx(tx).FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product for shipped line not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		payout, err := s.calc.ComputePayout(commission.Pricing{
			RetailCents:    product.PriceCents,
			WholesaleCents: product.WholesalePriceCents,
		}, item.UnitPriceCents, item.Qty)
		if err != nil {
			return err
		}

		applied, err = s.orders.WithTx(tx).ApplyChannelShipment(ctx, item.ID, orders.ChannelShipmentUpdate{
			ChannelShippedAt:  confirmedAt,
			TrackingURL:       defaultedURL,
			CommissionRate:    payout.Rate,
			CommissionCents:   payout.PlatformCents,
			VendorPayoutCents: payout.VendorCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamp channel shipment")
		}
		if !applied {
			return nil
		}
		if payout.PlatformCents < 0 {
			s.logg.Warn(s.logg.WithField(ctx, "platform_cents", payout.PlatformCents), "channel sale below vendor payout")
		}
		_, err = s.ledger.RecordSale(ctx, tx, ledger.SaleInput{
			VendorStoreID: item.VendorStoreID,
			OrderID:       item.OrderID,
			OrderItemID:   item.ID,
			AmountCents:   payout.VendorCents,
			ShippedAt:     shippedAt,
		})
		return err
	})
	if err != nil {
		return batch.Failed(key, err)
	}
	if !applied {
		return batch.Skipped(key, "already confirmed")
	}
	return batch.Succeeded(key)
}

// closeReadyOrders completes every purchase order whose lines are all on the
// Channel or returned. It also picks up orders whose completion failed on an
// earlier run and orders closed out by a return instead of a shipment.
func (s *Service) closeReadyOrders(ctx context.Context) error {
	ready, err := s.orders.ListChannelOrdersReadyToClose(ctx, s.batchLimit)
	if err != nil {
		return fmt.Errorf("list purchase orders ready to close: %w", err)
	}
	for _, co := range ready {
		if err := ctx.Err(); err != nil {
			return err
		}
		group := purchaseOrderGroup{
			purchaseOrderID: co.PurchaseOrderID,
			channelOrderID:  co.ID,
			orderID:         co.OrderID,
		}
		groupCtx := s.logg.WithPurchaseOrderID(ctx, co.PurchaseOrderID)
		if err := s.completeIfFullyShipped(groupCtx, group); err != nil {
			s.logg.Error(groupCtx, "failed to close shipped purchase order", err)
		}
	}
	return nil
}

// completeIfFullyShipped marks the purchase order and its order shipped once
// no line is left waiting for Channel confirmation.
func (s *Service) completeIfFullyShipped(ctx context.Context, group purchaseOrderGroup) error {
	at := s.now().UTC()
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		remaining, err := repo.CountItemsNotOnChannel(ctx, group.orderID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		marked, err := repo.MarkChannelOrderShipped(ctx, group.channelOrderID, at)
		if err != nil || !marked {
			return err
		}
		if err := repo.MarkOrderShipped(ctx, group.orderID, at); err != nil {
			return err
		}
		s.logg.Info(ctx, "purchase order fully shipped on channel")
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChannelOrderShipped,
			AggregateType: enums.AggregateChannelOrder,
			AggregateID:   group.channelOrderID,
			Source:        s.source,
			OccurredAt:    at,
			Data: payloads.ChannelOrderShippedEvent{
				ChannelOrderID:  group.channelOrderID,
				OrderID:         group.orderID,
				PurchaseOrderID: group.purchaseOrderID,
				ShippedAt:       at,
			},
		})
	})
}

func groupByPurchaseOrder(pending []orders.PendingShipment) []purchaseOrderGroup {
	var groups []purchaseOrderGroup
	index := make(map[string]int)
	for _, line := range pending {
		i, ok := index[line.PurchaseOrderID]
		if !ok {
			i = len(groups)
			index[line.PurchaseOrderID] = i
			groups = append(groups, purchaseOrderGroup{
				purchaseOrderID: line.PurchaseOrderID,
				channelOrderID:  line.ChannelOrderID,
				orderID:         line.Item.OrderID,
			})
		}
		groups[i].lines = append(groups[i].lines, line)
	}
	return groups
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
