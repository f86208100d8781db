// Package returns reconciles Channel-initiated returns against vendor payouts.
package returns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/ledger"
	"github.com/angelmondragon/packfinderz-channelsync/internal/orders"
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

// JobName identifies the reconciler in the run log and on the command line.
const JobName = "returns-sync"

const defaultServiceName = "channel-sync"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the Channel client the reconciler calls.
type Gateway interface {
	GetReturns(ctx context.Context, window channel.Window) ([]channel.RawReturn, error)
}

type windowSource interface {
	Window(ctx context.Context, job string, policy syncruns.WindowPolicy) (channel.Window, error)
}

// ServiceParams wire the reconciler.
type ServiceParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Gateway      Gateway
	Returns      Repository
	Orders       orders.Repository
	Ledger       ledger.Service
	Outbox       outbox.Emitter
	Windows      windowSource
	WindowPolicy syncruns.WindowPolicy
	SKUPrefix    string
	ServiceName  string
	Now          func() time.Time
}

// Service records Channel returns and applies them to the vendor ledger.
type Service struct {
	logg      *logger.Logger
	db        txRunner
	gateway   Gateway
	returns   Repository
	orders    orders.Repository
	ledger    ledger.Service
	outbox    outbox.Emitter
	windows   windowSource
	policy    syncruns.WindowPolicy
	skuPrefix string
	source    *outbox.Source
	now       func() time.Time
}

// NewService builds the reconciler.
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
	if params.Returns == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Windows == nil {
		return nil, fmt.Errorf("window source required")
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
		logg:      params.Logger,
		db:        params.DB,
		gateway:   params.Gateway,
		returns:   params.Returns,
		orders:    params.Orders,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		windows:   params.Windows,
		policy:    params.WindowPolicy,
		skuPrefix: params.SKUPrefix,
		source:    &outbox.Source{Service: serviceName, Job: JobName},
		now:       now,
	}, nil
}

func (s *Service) Name() string { return JobName }

// Run pulls the returns created inside the window and reconciles each one in
// its own transaction.
func (s *Service) Run(ctx context.Context) (batch.Summary, error) {
	var summary batch.Summary

	window, err := s.windows.Window(ctx, JobName, s.policy)
	if err != nil {
		return summary, fmt.Errorf("derive returns window: %w", err)
	}
	raws, err := s.gateway.GetReturns(ctx, window)
	if err != nil {
		return summary, err
	}
	sort.SliceStable(raws, func(i, j int) bool {
		if raws[i].ReturnDate.Equal(raws[j].ReturnDate) {
			return raws[i].ReturnOrderID < raws[j].ReturnOrderID
		}
		return raws[i].ReturnDate.Before(raws[j].ReturnDate)
	})

	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		ids = append(ids, raw.ReturnOrderID)
	}
	existing, err := s.returns.ExistingReturnOrderIDs(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("check recorded returns: %w", err)
	}

	for _, raw := range raws {
		if _, ok := existing[raw.ReturnOrderID]; ok {
			summary.Add(batch.Skipped(raw.ReturnOrderID, "already recorded"))
			continue
		}
		existing[raw.ReturnOrderID] = struct{}{}
		summary.Add(s.Reconcile(ctx, raw))
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"fetched":    len(raws),
		"reconciled": summary.Succeeded,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
	}), "returns sync complete")
	return summary, nil
}

// Reconcile stores one return and applies it to the ledger. Returns that
// cannot be matched to an imported order are stored for audit only.
func (s *Service) Reconcile(ctx context.Context, raw channel.RawReturn) batch.ItemResult {
	key := raw.ReturnOrderID
	ctx = s.logg.WithFields(s.logg.WithPurchaseOrderID(ctx, raw.PurchaseOrderID), map[string]any{
		"return_order_id": raw.ReturnOrderID,
	})

	if err := raw.Validate(); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "skipping invalid return")
		return batch.Skipped(key, err.Error())
	}

	record := &models.ChannelReturn{
		ID:              uuid.New(),
		ReturnOrderID:   raw.ReturnOrderID,
		PurchaseOrderID: raw.PurchaseOrderID,
		SKU:             channel.MarketplaceSKU(raw.SKU, s.skuPrefix),
		Qty:             raw.Quantity,
		RefundCents:     channel.Cents(raw.RefundAmount),
		Reason:          optional(raw.Reason),
		Status:          enums.ReturnStatusPending,
		ReturnedAt:      raw.ReturnDate.UTC(),
	}

	var outcome enums.ReturnLedgerOutcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.apply(ctx, tx, raw, record)
		if err != nil {
			return err
		}
		record.LedgerOutcome = outcome
		if err := s.returns.WithTx(tx).Create(ctx, record); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChannelReturnReceived,
			AggregateType: enums.AggregateChannelReturn,
			AggregateID:   record.ID,
			Source:        s.source,
			OccurredAt:    s.now().UTC(),
			Data: payloads.ChannelReturnReceivedEvent{
				ReturnID:        record.ID,
				ReturnOrderID:   record.ReturnOrderID,
				PurchaseOrderID: record.PurchaseOrderID,
				OrderID:         record.OrderID,
				OrderItemID:     record.OrderItemID,
				RefundCents:     record.RefundCents,
				LedgerOutcome:   outcome,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return batch.Skipped(key, "already recorded")
		}
		s.logg.Error(ctx, "failed to reconcile return", err)
		return batch.Failed(key, err)
	}

	s.logg.Info(s.logg.WithField(ctx, "ledger_outcome", outcome.String()), "return reconciled")
	switch outcome {
	case enums.ReturnLedgerOutcomeUnresolved:
		return batch.Skipped(key, "purchase order not imported")
	case enums.ReturnLedgerOutcomeNoSale:
		return batch.Skipped(key, "no matching sale")
	}
	return batch.Succeeded(key)
}

// apply resolves the order and line behind a return, flags the line and runs
// the ledger transition. It fills the resolved ids on record.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, raw channel.RawReturn, record *models.ChannelReturn) (enums.ReturnLedgerOutcome, error) {
	repo := s.orders.WithTx(tx)

	channelOrder, err := repo.FindChannelOrderByPurchaseOrderID(ctx, raw.PurchaseOrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logg.Warn(ctx, "return references an unknown purchase order")
		return enums.ReturnLedgerOutcomeUnresolved, nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve purchase order")
	}
	orderID := channelOrder.OrderID
	record.OrderID = &orderID

	item, err := s.findItem(ctx, repo, orderID, raw.LineNumber, record.SKU)
	if err != nil {
		return "", err
	}
	if item == nil {
		s.logg.Warn(s.logg.WithField(ctx, "sku", record.SKU), "return sku matches no order line")
		return enums.ReturnLedgerOutcomeNoSale, nil
	}
	itemID := item.ID
	record.OrderItemID = &itemID

	if err := repo.MarkItemReturnRequested(ctx, item.ID, s.now().UTC()); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag returned line")
	}

	returnID := record.ID
	result, err := s.ledger.OnReturn(ctx, tx, ledger.ReturnInput{
		VendorStoreID: item.VendorStoreID,
		OrderID:       orderID,
		OrderItemID:   item.ID,
		ReturnID:      &returnID,
		RefundCents:   record.RefundCents,
		ReturnedAt:    record.ReturnedAt,
	})
	if err != nil {
		return "", err
	}
	return result.Outcome, nil
}

// findItem prefers the Channel line number and falls back to the SKU.
func (s *Service) findItem(ctx context.Context, repo orders.Repository, orderID uuid.UUID, lineNumber, sku string) (*models.OrderItem, error) {
	if strings.TrimSpace(lineNumber) != "" {
		item, err := repo.FindItemByOrderAndLine(ctx, orderID, strings.TrimSpace(lineNumber))
		if err == nil && item.SKU == sku {
			return item, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve returned line")
		}
	}
	item, err := repo.FindItemByOrderAndSKU(ctx, orderID, sku)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve returned sku")
	}
	return item, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
