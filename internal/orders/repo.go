// Package orders persists marketplace orders created from Channel purchase
// orders along with the channel_orders bookkeeping rows.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-channelsync/internal/repo"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// Repository exposes order persistence for the sync jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateChannelOrder(ctx context.Context, channelOrder *models.ChannelOrder) error
	FindChannelOrderByPurchaseOrderID(ctx context.Context, purchaseOrderID string) (*models.ChannelOrder, error)
	ExistingPurchaseOrderIDs(ctx context.Context, purchaseOrderIDs []string) (map[string]struct{}, error)
	ListChannelOrdersByStatus(ctx context.Context, status enums.ChannelOrderStatus, limit int) ([]models.ChannelOrder, error)
	MarkChannelOrderAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkChannelOrderShipped(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkOrderShipped(ctx context.Context, orderID uuid.UUID, at time.Time) error

	ListItemsAwaitingChannelShipment(ctx context.Context, limit int) ([]PendingShipment, error)
	ApplyChannelShipment(ctx context.Context, itemID uuid.UUID, update ChannelShipmentUpdate) (bool, error)
	CountItemsNotOnChannel(ctx context.Context, orderID uuid.UUID) (int64, error)
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.OrderItem, error)
	FindItemByOrderAndLine(ctx context.Context, orderID uuid.UUID, lineNumber string) (*models.OrderItem, error)
	FindItemByOrderAndSKU(ctx context.Context, orderID uuid.UUID, sku string) (*models.OrderItem, error)
	MarkItemReturnRequested(ctx context.Context, itemID uuid.UUID, at time.Time) error
	ListChannelOrdersReadyToClose(ctx context.Context, limit int) ([]models.ChannelOrder, error)
}

// PendingShipment is an order item shipped by its vendor whose tracking has
// not yet been confirmed on the Channel.
type PendingShipment struct {
	Item            models.OrderItem
	ChannelOrderID  uuid.UUID
	PurchaseOrderID string
}

// ChannelShipmentUpdate carries the fields written once the Channel accepts a line's tracking.
type ChannelShipmentUpdate struct {
	ChannelShippedAt  time.Time
	TrackingURL       *string
	CommissionRate    decimal.Decimal
	CommissionCents   int
	VendorPayoutCents int
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

// CreateOrder inserts the order followed by its items and shipping address.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	db := r.DB(ctx)
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if len(order.Items) > 0 {
		if err := db.Create(&order.Items).Error; err != nil {
			return err
		}
	}
	if order.ShippingAddress != nil {
		order.ShippingAddress.OrderID = order.ID
		if err := db.Create(order.ShippingAddress).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) CreateChannelOrder(ctx context.Context, channelOrder *models.ChannelOrder) error {
	return r.DB(ctx).Create(channelOrder).Error
}

func (r *repository) FindChannelOrderByPurchaseOrderID(ctx context.Context, purchaseOrderID string) (*models.ChannelOrder, error) {
	var channelOrder models.ChannelOrder
	if err := r.DB(ctx).
		Where("purchase_order_id = ?", purchaseOrderID).
		First(&channelOrder).Error; err != nil {
		return nil, err
	}
	return &channelOrder, nil
}

func (r *repository) ExistingPurchaseOrderIDs(ctx context.Context, purchaseOrderIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(purchaseOrderIDs))
	if len(purchaseOrderIDs) == 0 {
		return existing, nil
	}
	var found []string
	if err := r.DB(ctx).
		Model(&models.ChannelOrder{}).
		Where("purchase_order_id IN ?", purchaseOrderIDs).
		Pluck("purchase_order_id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

func (r *repository) ListChannelOrdersByStatus(ctx context.Context, status enums.ChannelOrderStatus, limit int) ([]models.ChannelOrder, error) {
	var rows []models.ChannelOrder
	query := r.DB(ctx).
		Where("status = ?", status).
		Order("order_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkChannelOrderAcknowledged moves a created record to acknowledged. It
// reports false when the record was no longer in created.
func (r *repository) MarkChannelOrderAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.ChannelOrder{}).
		Where("id = ? AND status = ?", id, enums.ChannelOrderStatusCreated).
		Updates(map[string]any{
			"status":          enums.ChannelOrderStatusAcknowledged,
			"acknowledged_at": at,
			"updated_at":      at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkChannelOrderShipped(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.ChannelOrder{}).
		Where("id = ? AND status <> ?", id, enums.ChannelOrderStatusShipped).
		Updates(map[string]any{
			"status":     enums.ChannelOrderStatusShipped,
			"shipped_at": at,
			"updated_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkOrderShipped(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status <> ?", orderID, enums.OrderStatusShipped).
		Updates(map[string]any{
			"status":     enums.OrderStatusShipped,
			"shipped_at": at,
			"updated_at": at,
		}).Error
}

func (r *repository) ListItemsAwaitingChannelShipment(ctx context.Context, limit int) ([]PendingShipment, error) {
	type row struct {
		ItemID          uuid.UUID
		ChannelOrderID  uuid.UUID
		PurchaseOrderID string
	}
	var rows []row
	query := r.DB(ctx).
		Table("order_items").
		Select("order_items.id AS item_id, co.id AS channel_order_id, co.purchase_order_id AS purchase_order_id").
		Joins("JOIN channel_orders co ON co.order_id = order_items.order_id").
		Where("order_items.status = ?", enums.OrderItemStatusShipped).
		Where("order_items.tracking_number IS NOT NULL AND order_items.tracking_number <> ''").
		Where("order_items.channel_shipped_at IS NULL").
		Where("co.status <> ?", enums.ChannelOrderStatusShipped).
		Order("co.created_at ASC").
		Order("order_items.created_at ASC").
		Order("order_items.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	var items []models.OrderItem
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.OrderItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	pending := make([]PendingShipment, 0, len(rows))
	for _, row := range rows {
		item, ok := byID[row.ItemID]
		if !ok {
			continue
		}
		pending = append(pending, PendingShipment{
			Item:            item,
			ChannelOrderID:  row.ChannelOrderID,
			PurchaseOrderID: row.PurchaseOrderID,
		})
	}
	return pending, nil
}

// ApplyChannelShipment stamps channel_shipped_at and the ship-time payout on
// an item. It reports false when the item was already confirmed or is no
// longer in shipped (a return reached it first).
func (r *repository) ApplyChannelShipment(ctx context.Context, itemID uuid.UUID, update ChannelShipmentUpdate) (bool, error) {
	values := map[string]any{
		"channel_shipped_at":  update.ChannelShippedAt,
		"commission_rate":     update.CommissionRate,
		"commission_cents":    update.CommissionCents,
		"vendor_payout_cents": update.VendorPayoutCents,
		"updated_at":          update.ChannelShippedAt,
	}
	if update.TrackingURL != nil {
		values["tracking_url"] = *update.TrackingURL
	}
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND channel_shipped_at IS NULL AND status = ?", itemID, enums.OrderItemStatusShipped).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

// CountItemsNotOnChannel counts lines of the order still waiting for Channel
// shipment confirmation. Lines already in return are not waited on.
func (r *repository) CountItemsNotOnChannel(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Where("channel_shipped_at IS NULL").
		Where("status <> ?", enums.OrderItemStatusReturnRequested).
		Count(&count).Error
	return count, err
}

func (r *repository) FindItemByID(ctx context.Context, id uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItemByOrderAndLine(ctx context.Context, orderID uuid.UUID, lineNumber string) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).
		Where("order_id = ? AND channel_line_number = ?", orderID, lineNumber).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItemByOrderAndSKU(ctx context.Context, orderID uuid.UUID, sku string) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).
		Where("order_id = ? AND sku = ?", orderID, sku).
		Order("created_at ASC").
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) MarkItemReturnRequested(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"status":     enums.OrderItemStatusReturnRequested,
			"updated_at": at,
		}).Error
}

// ListChannelOrdersReadyToClose returns records not yet shipped whose lines
// are all either confirmed on the Channel or in return, with at least one
// confirmed line.
func (r *repository) ListChannelOrdersReadyToClose(ctx context.Context, limit int) ([]models.ChannelOrder, error) {
	var rows []models.ChannelOrder
	query := r.DB(ctx).
		Where("status <> ?", enums.ChannelOrderStatusShipped).
		Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = channel_orders.order_id AND oi.channel_shipped_at IS NOT NULL)").
		Where("NOT EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = channel_orders.order_id AND oi.channel_shipped_at IS NULL AND oi.status <> ?)",
			enums.OrderItemStatusReturnRequested).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
