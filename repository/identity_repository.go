package repository

import (
	"context"
	"time"

	"VibeQ/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdentityRepository stores soft identities and their last append time.
type IdentityRepository interface {
	// Upsert creates the record if it does not exist and returns the stored
	// one. An existing record is never modified.
	Upsert(ctx context.Context, record *model.IdentityRecord) (*model.IdentityRecord, error)
	Find(ctx context.Context, identity string) (*model.IdentityRecord, error)
	TouchLastAppend(ctx context.Context, identity string, at time.Time) error
}

type gormIdentityRepository struct {
	db *gorm.DB
}

// NewGormIdentityRepository creates a GORM-backed IdentityRepository.
func NewGormIdentityRepository(db *gorm.DB) IdentityRepository {
	return &gormIdentityRepository{db: db}
}

func (r *gormIdentityRepository) Upsert(ctx context.Context, record *model.IdentityRecord) (*model.IdentityRecord, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, record.Identity)
}

func (r *gormIdentityRepository) Find(ctx context.Context, identity string) (*model.IdentityRecord, error) {
	var record model.IdentityRecord
	err := r.db.WithContext(ctx).Where("identity = ?", identity).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormIdentityRepository) TouchLastAppend(ctx context.Context, identity string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.IdentityRecord{}).
		Where("identity = ?", identity).
		Update("last_append_at", at).Error
}
