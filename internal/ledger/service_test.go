package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
)

const holdDays = 14

var shipDate = time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)

type harness struct {
	svc    Service
	client *db.Client
	conn   *gorm.DB
	events *outbox.Repository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	events := outbox.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Outbox:     outbox.NewService(events, nil),
		HoldPeriod: holdDays * 24 * time.Hour,
		Now:        func() time.Time { return shipDate },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return harness{svc: svc, client: client, conn: conn, events: events}
}

func (h harness) recordSale(t *testing.T, input SaleInput) *models.VendorTransaction {
	t.Helper()
	var sale *models.VendorTransaction
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		sale, err = h.svc.RecordSale(context.Background(), tx, input)
		return err
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	return sale
}

func (h harness) onReturn(t *testing.T, input ReturnInput) ReturnResult {
	t.Helper()
	var result ReturnResult
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = h.svc.OnReturn(context.Background(), tx, input)
		return err
	})
	if err != nil {
		t.Fatalf("on return: %v", err)
	}
	return result
}

func (h harness) markPaidOut(id uuid.UUID, at time.Time) error {
	return h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.svc.MarkPaidOut(context.Background(), tx, id, at)
		return err
	})
}

func (h harness) countType(t *testing.T, txnType enums.VendorTransactionType) int64 {
	t.Helper()
	var count int64
	if err := h.conn.Model(&models.VendorTransaction{}).Where("type = ?", txnType).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", txnType, err)
	}
	return count
}

func newSale(amount int) SaleInput {
	return SaleInput{
		VendorStoreID: uuid.New(),
		OrderID:       uuid.New(),
		OrderItemID:   uuid.New(),
		AmountCents:   amount,
		ShippedAt:     shipDate,
	}
}

func TestRecordSaleIsPendingUntilHoldElapses(t *testing.T) {
	h := newHarness(t)
	sale := h.recordSale(t, newSale(4250))

	if sale.Status != enums.VendorTransactionStatusPending {
		t.Fatalf("expected pending sale, got %s", sale.Status)
	}
	want := shipDate.AddDate(0, 0, holdDays)
	if !sale.PayoutDate.Equal(want) {
		t.Fatalf("expected payout date %s, got %s", want, sale.PayoutDate)
	}
	count, err := h.events.CountByType(enums.EventVendorSaleRecorded)
	if err != nil || count != 1 {
		t.Fatalf("expected one sale event, got %d (%v)", count, err)
	}
}

func TestRecordSaleIsIdempotentPerLine(t *testing.T) {
	h := newHarness(t)
	input := newSale(2000)
	first := h.recordSale(t, input)
	second := h.recordSale(t, input)

	if first.ID != second.ID {
		t.Fatalf("expected the existing sale to be returned")
	}
	if got := h.countType(t, enums.VendorTransactionTypeSale); got != 1 {
		t.Fatalf("expected one sale row, got %d", got)
	}
}

func TestRecordSaleValidatesInput(t *testing.T) {
	h := newHarness(t)
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.svc.RecordSale(context.Background(), tx, SaleInput{AmountCents: 100})
		return err
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReturnBeforePayoutCancelsSale(t *testing.T) {
	h := newHarness(t)
	input := newSale(4250)
	sale := h.recordSale(t, input)

	result := h.onReturn(t, ReturnInput{
		VendorStoreID: input.VendorStoreID,
		OrderID:       input.OrderID,
		OrderItemID:   input.OrderItemID,
		RefundCents:   5000,
		ReturnedAt:    shipDate.AddDate(0, 0, 3),
	})
	if result.Outcome != enums.ReturnLedgerOutcomeSaleCancelled {
		t.Fatalf("expected sale cancelled, got %s", result.Outcome)
	}
	if result.Transaction == nil || result.Transaction.ID != sale.ID {
		t.Fatalf("expected the sale to be returned")
	}
	if got := h.countType(t, enums.VendorTransactionTypeReturnDeduction); got != 0 {
		t.Fatalf("expected no deduction, got %d", got)
	}
	balance, err := h.svc.VendorBalance(context.Background(), input.VendorStoreID, input.OrderID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance after cancel, got %d", balance)
	}
}

func TestReturnAfterPayoutIsDeductedOncePerReturn(t *testing.T) {
	h := newHarness(t)
	input := newSale(4250)
	sale := h.recordSale(t, input)
	if err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays)); err != nil {
		t.Fatalf("mark paid out: %v", err)
	}

	returnID := uuid.New()
	returnedAt := shipDate.AddDate(0, 0, 20)
	ret := ReturnInput{
		VendorStoreID: input.VendorStoreID,
		OrderID:       input.OrderID,
		OrderItemID:   input.OrderItemID,
		ReturnID:      &returnID,
		RefundCents:   5000,
		ReturnedAt:    returnedAt,
	}
	result := h.onReturn(t, ret)
	if result.Outcome != enums.ReturnLedgerOutcomeDeductionRecorded {
		t.Fatalf("expected deduction, got %s", result.Outcome)
	}
	deduction := result.Transaction
	if deduction.AmountCents != -4250 {
		t.Fatalf("expected -4250 deduction, got %d", deduction.AmountCents)
	}
	if deduction.Status != enums.VendorTransactionStatusPending {
		t.Fatalf("expected pending deduction, got %s", deduction.Status)
	}
	if !deduction.PayoutDate.Equal(returnedAt.AddDate(0, 0, holdDays)) {
		t.Fatalf("unexpected deduction payout date %s", deduction.PayoutDate)
	}
	if deduction.RelatedTransactionID == nil || *deduction.RelatedTransactionID != sale.ID {
		t.Fatalf("expected deduction to reference the sale")
	}

	again := h.onReturn(t, ret)
	if again.Outcome != enums.ReturnLedgerOutcomeAlreadySettled {
		t.Fatalf("expected second return to be a no-op, got %s", again.Outcome)
	}
	if got := h.countType(t, enums.VendorTransactionTypeReturnDeduction); got != 1 {
		t.Fatalf("expected exactly one deduction, got %d", got)
	}
	balance, err := h.svc.VendorBalance(context.Background(), input.VendorStoreID, input.OrderID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestEachReturnOnPaidOutLineRecordsDeduction(t *testing.T) {
	h := newHarness(t)
	input := newSale(8500)
	sale := h.recordSale(t, input)
	if err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays)); err != nil {
		t.Fatalf("mark paid out: %v", err)
	}

	returnFor := func(refund int) ReturnInput {
		returnID := uuid.New()
		return ReturnInput{
			VendorStoreID: input.VendorStoreID,
			OrderID:       input.OrderID,
			OrderItemID:   input.OrderItemID,
			ReturnID:      &returnID,
			RefundCents:   refund,
			ReturnedAt:    shipDate.AddDate(0, 0, 20),
		}
	}
	for i := 0; i < 2; i++ {
		result := h.onReturn(t, returnFor(4250))
		if result.Outcome != enums.ReturnLedgerOutcomeDeductionRecorded {
			t.Fatalf("return %d: expected deduction, got %s", i+1, result.Outcome)
		}
		if result.Transaction.AmountCents != -4250 {
			t.Fatalf("return %d: expected -4250, got %d", i+1, result.Transaction.AmountCents)
		}
	}
	if got := h.countType(t, enums.VendorTransactionTypeReturnDeduction); got != 2 {
		t.Fatalf("expected two deductions, got %d", got)
	}
	balance, err := h.svc.VendorBalance(context.Background(), input.VendorStoreID, input.OrderID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}

	extra := h.onReturn(t, returnFor(100))
	if extra.Outcome != enums.ReturnLedgerOutcomeAlreadySettled {
		t.Fatalf("expected fully deducted line to settle, got %s", extra.Outcome)
	}
	if got := h.countType(t, enums.VendorTransactionTypeReturnDeduction); got != 2 {
		t.Fatalf("expected no further deduction, got %d", got)
	}
}

func TestDeductionIsCappedByEarlierDeductions(t *testing.T) {
	h := newHarness(t)
	input := newSale(5000)
	sale := h.recordSale(t, input)
	if err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays)); err != nil {
		t.Fatalf("mark paid out: %v", err)
	}

	amounts := []int{}
	for _, refund := range []int{3000, 3000} {
		returnID := uuid.New()
		result := h.onReturn(t, ReturnInput{
			VendorStoreID: input.VendorStoreID,
			OrderID:       input.OrderID,
			OrderItemID:   input.OrderItemID,
			ReturnID:      &returnID,
			RefundCents:   refund,
		})
		amounts = append(amounts, result.Transaction.AmountCents)
	}
	if amounts[0] != -3000 || amounts[1] != -2000 {
		t.Fatalf("expected deductions -3000 and -2000, got %v", amounts)
	}
}

func TestReturnOnLineWithoutSaleIgnoresOtherLines(t *testing.T) {
	h := newHarness(t)
	input := newSale(4250)
	h.recordSale(t, input)

	result := h.onReturn(t, ReturnInput{
		VendorStoreID: input.VendorStoreID,
		OrderID:       input.OrderID,
		OrderItemID:   uuid.New(),
		RefundCents:   4250,
	})
	if result.Outcome != enums.ReturnLedgerOutcomeNoSale {
		t.Fatalf("expected no_sale, got %s", result.Outcome)
	}
	var sale models.VendorTransaction
	if err := h.conn.Where("order_item_id = ?", input.OrderItemID).First(&sale).Error; err != nil {
		t.Fatalf("load sale: %v", err)
	}
	if sale.Status != enums.VendorTransactionStatusPending {
		t.Fatalf("expected untouched sale, got %s", sale.Status)
	}
}

func TestPartialRefundDeductsRefundAmount(t *testing.T) {
	h := newHarness(t)
	input := newSale(4250)
	sale := h.recordSale(t, input)
	if err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays+1)); err != nil {
		t.Fatalf("mark paid out: %v", err)
	}

	result := h.onReturn(t, ReturnInput{
		VendorStoreID: input.VendorStoreID,
		OrderID:       input.OrderID,
		RefundCents:   1000,
	})
	if result.Outcome != enums.ReturnLedgerOutcomeDeductionRecorded || result.Transaction.AmountCents != -1000 {
		t.Fatalf("unexpected result %+v", result)
	}
	balance, _ := h.svc.VendorBalance(context.Background(), input.VendorStoreID, input.OrderID)
	if balance != 3250 {
		t.Fatalf("expected balance 3250, got %d", balance)
	}
}

func TestReturnWithoutSale(t *testing.T) {
	h := newHarness(t)
	result := h.onReturn(t, ReturnInput{
		VendorStoreID: uuid.New(),
		OrderID:       uuid.New(),
		OrderItemID:   uuid.New(),
		RefundCents:   500,
	})
	if result.Outcome != enums.ReturnLedgerOutcomeNoSale {
		t.Fatalf("expected no_sale, got %s", result.Outcome)
	}
}

func TestMarkPaidOutGuards(t *testing.T) {
	h := newHarness(t)
	sale := h.recordSale(t, newSale(1500))

	err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, 1))
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected payout before hold to conflict, got %v", err)
	}

	payable, err := h.svc.ListPayable(context.Background(), shipDate.AddDate(0, 0, holdDays), 0)
	if err != nil {
		t.Fatalf("list payable: %v", err)
	}
	if len(payable) != 1 || payable[0].ID != sale.ID {
		t.Fatalf("expected the sale to be payable, got %+v", payable)
	}

	if err := h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays)); err != nil {
		t.Fatalf("mark paid out: %v", err)
	}
	err = h.markPaidOut(sale.ID, shipDate.AddDate(0, 0, holdDays+1))
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected second payout to conflict, got %v", err)
	}

	err = h.markPaidOut(uuid.New(), shipDate)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	payable, err = h.svc.ListPayable(context.Background(), shipDate.AddDate(0, 0, holdDays+1), 0)
	if err != nil {
		t.Fatalf("list payable: %v", err)
	}
	if len(payable) != 0 {
		t.Fatalf("expected nothing payable after settlement, got %d", len(payable))
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected missing repository error")
	}
	if _, err := NewService(ServiceParams{Repo: NewRepository(nil)}); err == nil {
		t.Fatalf("expected missing outbox error")
	}
}
