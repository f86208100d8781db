// Package syncruns keeps the per-job run log the batch jobs read their
// windows from.
package syncruns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/repo"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// Repository persists sync runs.
type Repository interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Finish(ctx context.Context, id uuid.UUID, values map[string]any) error
	LastByStatus(ctx context.Context, job string, status enums.SyncRunStatus) (*models.SyncRun, error)
	ListRecent(ctx context.Context, job string, limit int) ([]models.SyncRun, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds a sync run repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, run *models.SyncRun) error {
	return r.DB(ctx).Create(run).Error
}

func (r *repository) Finish(ctx context.Context, id uuid.UUID, values map[string]any) error {
	return r.DB(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, enums.SyncRunStatusRunning).
		Updates(values).Error
}

func (r *repository) LastByStatus(ctx context.Context, job string, status enums.SyncRunStatus) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := r.DB(ctx).
		Where("job = ? AND status = ?", job, status).
		Order("started_at DESC").
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) ListRecent(ctx context.Context, job string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	query := r.DB(ctx).Where("job = ?", job).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
