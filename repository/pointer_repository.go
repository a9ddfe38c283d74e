package repository

import (
	"context"
	"time"

	"VibeQ/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointerRepository stores the single now-playing cell.
type PointerRepository interface {
	// Get returns the stored track id, or nil when nothing was ever set.
	Get(ctx context.Context) (*string, error)
	// Set overwrites the pointer unconditionally.
	Set(ctx context.Context, trackID string) error
}

type gormPointerRepository struct {
	db *gorm.DB
}

// NewGormPointerRepository creates a GORM-backed PointerRepository.
func NewGormPointerRepository(db *gorm.DB) PointerRepository {
	return &gormPointerRepository{db: db}
}

func (r *gormPointerRepository) Get(ctx context.Context) (*string, error) {
	var row model.NowPlaying
	err := r.db.WithContext(ctx).Where("state_key = ?", model.NowPlayingKey).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row.CurrentTrackID, nil
}

func (r *gormPointerRepository) Set(ctx context.Context, trackID string) error {
	row := model.NowPlaying{
		Key:            model.NowPlayingKey,
		CurrentTrackID: &trackID,
		UpdatedAt:      time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_track_id", "updated_at"}),
		}).
		Create(&row).Error
}
