// Package ledger keeps the per-line vendor payout ledger.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-channelsync/internal/repo"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// Repository manages persistence for vendor transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.VendorTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorTransaction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorTransaction, error)
	FindByItemAndType(ctx context.Context, orderItemID uuid.UUID, txnType enums.VendorTransactionType) (*models.VendorTransaction, error)
	FindDeductionForReturn(ctx context.Context, orderItemID, returnID uuid.UUID) (*models.VendorTransaction, error)
	SumDeductions(ctx context.Context, orderItemID uuid.UUID) (int, error)
	FindLatestSale(ctx context.Context, orderID, vendorStoreID uuid.UUID) (*models.VendorTransaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.VendorTransactionStatus, at time.Time) (bool, error)
	ListPayable(ctx context.Context, asOf time.Time, limit int) ([]models.VendorTransaction, error)
	SumActive(ctx context.Context, vendorStoreID, orderID uuid.UUID) (int, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.VendorTransaction) error {
	return r.DB(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorTransaction, error) {
	var txn models.VendorTransaction
	if err := r.DB(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByIDForUpdate loads a transaction and locks its row until the
// surrounding transaction ends.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorTransaction, error) {
	var txn models.VendorTransaction
	if err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByItemAndType(ctx context.Context, orderItemID uuid.UUID, txnType enums.VendorTransactionType) (*models.VendorTransaction, error) {
	var txn models.VendorTransaction
	if err := r.DB(ctx).
		Where("order_item_id = ? AND type = ?", orderItemID, txnType).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindDeductionForReturn(ctx context.Context, orderItemID, returnID uuid.UUID) (*models.VendorTransaction, error) {
	var txn models.VendorTransaction
	if err := r.DB(ctx).
		Where("order_item_id = ? AND return_id = ? AND type = ?", orderItemID, returnID, enums.VendorTransactionTypeReturnDeduction).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// SumDeductions totals the non-cancelled deductions on a line. The result is
// zero or negative.
func (r *repository) SumDeductions(ctx context.Context, orderItemID uuid.UUID) (int, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.VendorTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("order_item_id = ? AND type = ? AND status <> ?", orderItemID, enums.VendorTransactionTypeReturnDeduction, enums.VendorTransactionStatusCancelled).
		Scan(&total).Error
	return int(total), err
}

func (r *repository) FindLatestSale(ctx context.Context, orderID, vendorStoreID uuid.UUID) (*models.VendorTransaction, error) {
	var txn models.VendorTransaction
	if err := r.DB(ctx).
		Where("order_id = ? AND vendor_store_id = ? AND type = ?", orderID, vendorStoreID, enums.VendorTransactionTypeSale).
		Order("created_at DESC").
		Order("id DESC").
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpdateStatus moves a transaction from one status to another and reports
// whether the row was still in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.VendorTransactionStatus, at time.Time) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if to == enums.VendorTransactionStatusPaidOut {
		values["paid_out_at"] = at
	}
	res := r.DB(ctx).
		Model(&models.VendorTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListPayable(ctx context.Context, asOf time.Time, limit int) ([]models.VendorTransaction, error) {
	var rows []models.VendorTransaction
	query := r.DB(ctx).
		Where("status = ? AND payout_date <= ?", enums.VendorTransactionStatusPending, asOf).
		Order("payout_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumActive totals every non-cancelled entry for a vendor on an order.
func (r *repository) SumActive(ctx context.Context, vendorStoreID, orderID uuid.UUID) (int, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.VendorTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("vendor_store_id = ? AND order_id = ? AND status <> ?", vendorStoreID, orderID, enums.VendorTransactionStatusCancelled).
		Scan(&total).Error
	return int(total), err
}
