package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// SyncRun is one row of the sync run log.
type SyncRun struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Job          string              `gorm:"column:job;not null"`
	Status       enums.SyncRunStatus `gorm:"column:status;not null"`
	StartedAt    time.Time           `gorm:"column:started_at;not null"`
	FinishedAt   *time.Time          `gorm:"column:finished_at"`
	DurationMS   int64               `gorm:"column:duration_ms;not null"`
	Processed    int                 `gorm:"column:processed;not null"`
	Succeeded    int                 `gorm:"column:succeeded;not null"`
	Skipped      int                 `gorm:"column:skipped;not null"`
	Failed       int                 `gorm:"column:failed;not null"`
	ErrorMessage *string             `gorm:"column:error_message"`
}
