package inventory

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

// Availability is the Channel stock position of one listed product.
type Availability struct {
	ProductID     uuid.UUID
	VendorStoreID uuid.UUID
	SKU           string
	AllocatedQty  int
	UnshippedQty  int
}

// Available is what the Channel may still sell. Never negative.
func (a Availability) Available() int {
	if free := a.AllocatedQty - a.UnshippedQty; free > 0 {
		return free
	}
	return 0
}

// Repository reads allocations and the Channel sales still waiting on a vendor.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListListedAvailability(ctx context.Context) ([]Availability, error)
	UpsertAllocation(ctx context.Context, allocation *models.ChannelInventoryAllocation) error
	FindAllocation(ctx context.Context, productID uuid.UUID) (*models.ChannelInventoryAllocation, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds an inventory repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

const listedAvailabilitySQL = `
SELECT
	p.id AS product_id,
	p.store_id AS vendor_store_id,
	p.sku AS sku,
	COALESCE(a.allocated_qty, 0) AS allocated_qty,
	COALESCE(u.unshipped_qty, 0) AS unshipped_qty
FROM products p
LEFT JOIN channel_inventory_allocations a ON a.product_id = p.id
LEFT JOIN (
	SELECT oi.product_id AS product_id, SUM(oi.qty) AS unshipped_qty
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.source = ? AND oi.status = ?
	GROUP BY oi.product_id
) u ON u.product_id = p.id
WHERE p.is_active = ? AND p.channel_listed = ?
ORDER BY p.sku ASC, p.id ASC`

// ListListedAvailability returns every active Channel listing with its
// allocation and unshipped Channel quantity. Listings without an allocation
// report zero.
func (r *repository) ListListedAvailability(ctx context.Context) ([]Availability, error) {
	var rows []Availability
	err := r.DB(ctx).
		Raw(listedAvailabilitySQL, channelOrderSource, enums.OrderItemStatusPending, true, true).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) UpsertAllocation(ctx context.Context, allocation *models.ChannelInventoryAllocation) error {
	allocation.UpdatedAt = time.Now().UTC()
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vendor_store_id", "allocated_qty", "updated_at"}),
		}).
		Create(allocation).Error
}

func (r *repository) FindAllocation(ctx context.Context, productID uuid.UUID) (*models.ChannelInventoryAllocation, error) {
	var allocation models.ChannelInventoryAllocation
	if err := r.DB(ctx).Where("product_id = ?", productID).First(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}
