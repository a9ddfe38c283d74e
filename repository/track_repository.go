package repository

import (
	"context"
	"time"

	"VibeQ/model"

	"gorm.io/gorm"
)

// TrackRepository is the storage boundary for queue entries.
type TrackRepository interface {
	Insert(ctx context.Context, track *model.TrackEntry) error
	ListByRecency(ctx context.Context) ([]*model.TrackEntry, error)
	FindByID(ctx context.Context, id string) (*model.TrackEntry, error)
	// DeleteByID reports whether a row was removed.
	DeleteByID(ctx context.Context, id string) (bool, error)
	CountByOwnerSince(ctx context.Context, owner string, since time.Time) (int64, error)
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a GORM-backed TrackRepository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) Insert(ctx context.Context, track *model.TrackEntry) error {
	return r.db.WithContext(ctx).Create(track).Error
}

// ListByRecency returns every entry, newest first. Ties on created_at are
// broken by id so the order is stable between calls.
func (r *gormTrackRepository) ListByRecency(ctx context.Context) ([]*model.TrackEntry, error) {
	var tracks []*model.TrackEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tracks).Error
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (r *gormTrackRepository) FindByID(ctx context.Context, id string) (*model.TrackEntry, error) {
	var track model.TrackEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

func (r *gormTrackRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TrackEntry{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormTrackRepository) CountByOwnerSince(ctx context.Context, owner string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TrackEntry{}).
		Where("owner_identity = ? AND created_at >= ?", owner, since).
		Count(&count).Error
	return count, err
}
