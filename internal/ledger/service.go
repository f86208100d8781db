package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox/payloads"
)

// Service records and settles vendor ledger entries. Writes run inside the
// caller's transaction so they commit with the state change that caused them.
type Service interface {
	RecordSale(ctx context.Context, tx *gorm.DB, input SaleInput) (*models.VendorTransaction, error)
	OnReturn(ctx context.Context, tx *gorm.DB, input ReturnInput) (ReturnResult, error)
	MarkPaidOut(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, at time.Time) (*models.VendorTransaction, error)
	ListPayable(ctx context.Context, asOf time.Time, limit int) ([]models.VendorTransaction, error)
	VendorBalance(ctx context.Context, vendorStoreID, orderID uuid.UUID) (int, error)
}

// SaleInput describes a shipped line the vendor is owed for.
type SaleInput struct {
	VendorStoreID uuid.UUID
	OrderID       uuid.UUID
	OrderItemID   uuid.UUID
	AmountCents   int
	ShippedAt     time.Time
}

// ReturnInput describes a Channel return against a vendor's sale. When
// OrderItemID is uuid.Nil the latest sale for the vendor on the order is used.
type ReturnInput struct {
	VendorStoreID uuid.UUID
	OrderID       uuid.UUID
	OrderItemID   uuid.UUID
	ReturnID      *uuid.UUID
	RefundCents   int
	ReturnedAt    time.Time
}

// ReturnResult reports what a return did to the ledger.
type ReturnResult struct {
	Outcome     enums.ReturnLedgerOutcome
	Transaction *models.VendorTransaction
}

type ServiceParams struct {
	Repo       Repository
	Outbox     outbox.Emitter
	HoldPeriod time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo   Repository
	outbox outbox.Emitter
	hold   time.Duration
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires a ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.HoldPeriod < 0 {
		return nil, fmt.Errorf("hold period must not be negative")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		outbox: params.Outbox,
		hold:   params.HoldPeriod,
		logg:   params.Logger,
		now:    now,
	}, nil
}

// RecordSale creates the pending sale for a line, or returns the one already recorded.
func (s *service) RecordSale(ctx context.Context, tx *gorm.DB, input SaleInput) (*models.VendorTransaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if input.VendorStoreID == uuid.Nil || input.OrderID == uuid.Nil || input.OrderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor, order and order item are required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale amount must not be negative")
	}
	if input.ShippedAt.IsZero() {
		input.ShippedAt = s.now()
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByItemAndType(ctx, input.OrderItemID, enums.VendorTransactionTypeSale)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup sale")
	}

	sale := &models.VendorTransaction{
		VendorStoreID: input.VendorStoreID,
		OrderID:       input.OrderID,
		OrderItemID:   input.OrderItemID,
		Type:          enums.VendorTransactionTypeSale,
		AmountCents:   input.AmountCents,
		Status:        enums.VendorTransactionStatusPending,
		PayoutDate:    input.ShippedAt.UTC().Add(s.hold),
	}
	if err := repo.Create(ctx, sale); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "record sale")
	}
	if err := s.emit(ctx, tx, enums.EventVendorSaleRecorded, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

// OnReturn applies a return to the vendor's sale. A missing sale is an
// outcome, not an error.
func (s *service) OnReturn(ctx context.Context, tx *gorm.DB, input ReturnInput) (ReturnResult, error) {
	if tx == nil {
		return ReturnResult{}, errors.New("transaction required")
	}
	if input.RefundCents < 0 {
		return ReturnResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund must not be negative")
	}
	if input.ReturnedAt.IsZero() {
		input.ReturnedAt = s.now()
	}
	repo := s.repo.WithTx(tx)

	sale, err := s.findSale(ctx, repo, input)
	if err != nil {
		return ReturnResult{}, err
	}
	if sale == nil {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", input.OrderID.String()), "return has no recorded sale")
		return ReturnResult{Outcome: enums.ReturnLedgerOutcomeNoSale}, nil
	}

	step, err := Transition(sale.Type, sale.Status, TriggerReturn)
	if err != nil {
		return ReturnResult{}, err
	}

	switch step.Action {
	case ActionCancel:
		at := s.now().UTC()
		ok, err := repo.UpdateStatus(ctx, sale.ID, sale.Status, step.Next, at)
		if err != nil {
			return ReturnResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel sale")
		}
		if !ok {
			return ReturnResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "sale changed status during return")
		}
		sale.Status = step.Next
		if err := s.emit(ctx, tx, enums.EventVendorSaleCancelled, sale); err != nil {
			return ReturnResult{}, err
		}
		return ReturnResult{Outcome: step.Outcome, Transaction: sale}, nil

	case ActionRecordDeduction:
		deduction, err := s.recordDeduction(ctx, tx, repo, sale, input)
		if err != nil {
			return ReturnResult{}, err
		}
		if deduction == nil {
			return ReturnResult{Outcome: enums.ReturnLedgerOutcomeAlreadySettled, Transaction: sale}, nil
		}
		return ReturnResult{Outcome: step.Outcome, Transaction: deduction}, nil
	}

	return ReturnResult{Outcome: step.Outcome, Transaction: sale}, nil
}

func (s *service) findSale(ctx context.Context, repo Repository, input ReturnInput) (*models.VendorTransaction, error) {
	var (
		sale *models.VendorTransaction
		err  error
	)
	if input.OrderItemID != uuid.Nil {
		sale, err = repo.FindByItemAndType(ctx, input.OrderItemID, enums.VendorTransactionTypeSale)
	} else {
		sale, err = repo.FindLatestSale(ctx, input.OrderID, input.VendorStoreID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup sale")
	}
	return sale, nil
}

// recordDeduction claws back the refund from a paid-out sale, capped at what
// earlier deductions on the line left of the sale. It returns nil when this
// return was already deducted or nothing is left to claw back.
func (s *service) recordDeduction(ctx context.Context, tx *gorm.DB, repo Repository, sale *models.VendorTransaction, input ReturnInput) (*models.VendorTransaction, error) {
	locked, err := repo.FindByIDForUpdate(ctx, sale.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock sale")
	}
	sale = locked
	if input.ReturnID != nil {
		_, err := repo.FindDeductionForReturn(ctx, sale.OrderItemID, *input.ReturnID)
		switch {
		case err == nil:
			return nil, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup deduction")
		}
	}

	deducted, err := repo.SumDeductions(ctx, sale.OrderItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum deductions")
	}
	amount := min(input.RefundCents, sale.AmountCents+deducted)
	if amount <= 0 {
		return nil, nil
	}

	saleID := sale.ID
	deduction := &models.VendorTransaction{
		VendorStoreID:        sale.VendorStoreID,
		OrderID:              sale.OrderID,
		OrderItemID:          sale.OrderItemID,
		Type:                 enums.VendorTransactionTypeReturnDeduction,
		AmountCents:          -amount,
		Status:               enums.VendorTransactionStatusPending,
		PayoutDate:           input.ReturnedAt.UTC().Add(s.hold),
		RelatedTransactionID: &saleID,
		ReturnID:             input.ReturnID,
	}
	if err := repo.Create(ctx, deduction); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "record deduction")
	}
	if err := s.emit(ctx, tx, enums.EventVendorDeductionCreated, deduction); err != nil {
		return nil, err
	}
	return deduction, nil
}

// MarkPaidOut settles a pending entry whose hold has elapsed.
func (s *service) MarkPaidOut(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, at time.Time) (*models.VendorTransaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	txn, err := repo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor transaction")
	}

	step, err := Transition(txn.Type, txn.Status, TriggerPayout)
	if err != nil {
		return nil, err
	}
	if at.Before(txn.PayoutDate) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout date not reached").
			WithDetails(map[string]any{"payout_date": txn.PayoutDate})
	}
	ok, err := repo.UpdateStatus(ctx, txn.ID, txn.Status, step.Next, at.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark paid out")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor transaction changed status")
	}
	paidAt := at.UTC()
	txn.Status = step.Next
	txn.PaidOutAt = &paidAt
	if err := s.emit(ctx, tx, enums.EventVendorPayoutSettled, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) ListPayable(ctx context.Context, asOf time.Time, limit int) ([]models.VendorTransaction, error) {
	return s.repo.ListPayable(ctx, asOf.UTC(), limit)
}

// VendorBalance is what the vendor is currently owed (or has been paid) for an order.
func (s *service) VendorBalance(ctx context.Context, vendorStoreID, orderID uuid.UUID) (int, error) {
	return s.repo.SumActive(ctx, vendorStoreID, orderID)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.VendorTransaction) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateVendorTransaction,
		AggregateID:   txn.ID,
		OccurredAt:    s.now().UTC(),
		Data: payloads.VendorTransactionEvent{
			TransactionID: txn.ID,
			VendorStoreID: txn.VendorStoreID,
			OrderID:       txn.OrderID,
			OrderItemID:   txn.OrderItemID,
			Type:          txn.Type,
			Status:        txn.Status,
			AmountCents:   txn.AmountCents,
			PayoutDate:    txn.PayoutDate,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}
