package repository

import (
	"context"
	"errors"
	"time"

	"gpustandby/internal/model"

	"gorm.io/gorm"
)

type SnapshotRepository interface {
	Create(ctx context.Context, snap *model.Snapshot) error
	GetBySnapshotID(ctx context.Context, snapshotID string) (*model.Snapshot, error)
	GetLatestBySource(ctx context.Context, sourceInstanceID string) (*model.Snapshot, error)
	ListBySource(ctx context.Context, sourceInstanceID string) ([]*model.Snapshot, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Snapshot, error)
	Delete(ctx context.Context, snapshotID string) error
}

func NewSnapshotRepository(r *Repository) SnapshotRepository {
	return &snapshotRepository{Repository: r}
}

type snapshotRepository struct {
	*Repository
}

func (r *snapshotRepository) Create(ctx context.Context, snap *model.Snapshot) error {
	snap.CreateTime = time.Now()
	return r.DB(ctx).Create(snap).Error
}

func (r *snapshotRepository) GetBySnapshotID(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := r.DB(ctx).Where("snapshot_id = ?", snapshotID).First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (r *snapshotRepository) GetLatestBySource(ctx context.Context, sourceInstanceID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := r.DB(ctx).
		Where("source_instance_id = ?", sourceInstanceID).
		Order("gmt_create DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *snapshotRepository) ListBySource(ctx context.Context, sourceInstanceID string) ([]*model.Snapshot, error) {
	var snaps []*model.Snapshot
	if err := r.DB(ctx).Where("source_instance_id = ?", sourceInstanceID).Order("gmt_create DESC").Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

func (r *snapshotRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Snapshot, error) {
	var snaps []*model.Snapshot
	if err := r.DB(ctx).Where("gmt_create < ?", cutoff).Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

func (r *snapshotRepository) Delete(ctx context.Context, snapshotID string) error {
	return r.DB(ctx).Where("snapshot_id = ?", snapshotID).Delete(&model.Snapshot{}).Error
}
