package returns

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/repo"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
)

// Repository persists Channel return records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.ChannelReturn) error
	FindByReturnOrderID(ctx context.Context, returnOrderID string) (*models.ChannelReturn, error)
	ExistingReturnOrderIDs(ctx context.Context, returnOrderIDs []string) (map[string]struct{}, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds a return repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, record *models.ChannelReturn) error {
	return r.DB(ctx).Create(record).Error
}

func (r *repository) FindByReturnOrderID(ctx context.Context, returnOrderID string) (*models.ChannelReturn, error) {
	var record models.ChannelReturn
	if err := r.DB(ctx).
		Where("return_order_id = ?", returnOrderID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ExistingReturnOrderIDs(ctx context.Context, returnOrderIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(returnOrderIDs))
	if len(returnOrderIDs) == 0 {
		return existing, nil
	}
	var found []string
	if err := r.DB(ctx).
		Model(&models.ChannelReturn{}).
		Where("return_order_id IN ?", returnOrderIDs).
		Pluck("return_order_id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}
