package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/models"
)

// ActivityLogFilter narrows audit trail queries. Nil or empty fields match everything.
type ActivityLogFilter struct {
	Page       int
	PageSize   int
	ActorID    *uint
	EntityID   *uint
	Action     string
	EntityType string
}

func (f ActivityLogFilter) scope(tx *gorm.DB) *gorm.DB {
	if f.ActorID != nil {
		tx = tx.Where("actor_id = ?", *f.ActorID)
	}
	if f.EntityID != nil {
		tx = tx.Where("entity_id = ?", *f.EntityID)
	}
	if f.Action != "" {
		tx = tx.Where("action = ?", f.Action)
	}
	if f.EntityType != "" {
		tx = tx.Where("entity_type = ?", f.EntityType)
	}
	return tx
}

// ActivityLogRepository appends to and reads the staff audit trail of member, record and period changes.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the audit trail repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.ActivityLog{}).Scopes(filter.scope)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.ActivityLog
	err := base.
		Scopes(paginate(filter.Page, filter.PageSize), newestFirst).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
