// Package products reads the marketplace catalogue that Channel SKUs resolve against.
package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/repo"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
)

// Repository is the catalogue view used by the sync jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySKU(ctx context.Context, sku string) (*models.Product, error)
	FindBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListRetiredListings(ctx context.Context, limit int) ([]models.Product, error)
	MarkUnlisted(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	repo.Base
}

// NewRepository binds a product repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("sku = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindBySKUs returns the products matching skus keyed by SKU. Unknown SKUs are absent.
func (r *repository) FindBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error) {
	found := make(map[string]models.Product, len(skus))
	if len(skus) == 0 {
		return found, nil
	}
	var rows []models.Product
	if err := r.DB(ctx).Where("sku IN ?", skus).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		found[row.SKU] = row
	}
	return found, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ListRetiredListings returns deactivated products that are still listed on the Channel.
func (r *repository) ListRetiredListings(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []models.Product
	query := r.DB(ctx).
		Where("is_active = ? AND channel_listed = ?", false, true).
		Order("sku ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkUnlisted(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"channel_listed": false,
			"updated_at":     time.Now().UTC(),
		}).Error
}
