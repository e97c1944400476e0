package repository

import (
	"context"
	"errors"
	"time"

	"gpustandby/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrAlreadyAssociated: the primary already has an active association and
	// the caller did not ask for migration. An invariant violation, never
	// swallowed.
	ErrAlreadyAssociated = errors.New("repository: primary instance already associated")
	// ErrStandbyInUse: the standby instance belongs to another active association.
	ErrStandbyInUse = errors.New("repository: standby instance already in use")
	// ErrAssociationNotFound: no active association for the primary.
	ErrAssociationNotFound = errors.New("repository: association not found")
)

// AssociateConfig carries the per-pair standby settings at creation time.
type AssociateConfig struct {
	SyncIntervalSeconds int
	AutoFailover        bool
	AutoRecovery        bool
	ProviderZone        string
	MachineType         string
	Migrate             bool // tear down the existing association atomically
}

// StandbyAssociationRepository is the durable registry of primary->standby
// bindings. It enforces one active association per primary instance.
type StandbyAssociationRepository interface {
	Associate(ctx context.Context, primaryID, standbyID string, cfg *AssociateConfig) (*model.StandbyAssociation, error)
	GetAssociation(ctx context.Context, primaryID string) (*model.StandbyAssociation, error)
	ListActive(ctx context.Context) ([]*model.StandbyAssociation, error)
	UpdateSyncState(ctx context.Context, primaryID, state string) error
	RecordSyncProgress(ctx context.Context, primaryID string, bytesSynced int64, at time.Time) error
	ReplacePrimary(ctx context.Context, oldPrimaryID, newPrimaryID string) error
	Dissociate(ctx context.Context, primaryID string) error
}

func NewStandbyAssociationRepository(r *Repository, tm Transaction) StandbyAssociationRepository {
	return &standbyAssociationRepository{Repository: r, tm: tm}
}

type standbyAssociationRepository struct {
	*Repository
	tm Transaction
}

func (r *standbyAssociationRepository) Associate(ctx context.Context, primaryID, standbyID string, cfg *AssociateConfig) (*model.StandbyAssociation, error) {
	if cfg == nil {
		cfg = &AssociateConfig{SyncIntervalSeconds: 30, AutoFailover: true, AutoRecovery: true}
	}
	if cfg.SyncIntervalSeconds <= 0 {
		cfg.SyncIntervalSeconds = 30
	}

	var created *model.StandbyAssociation
	err := r.tm.Transaction(ctx, func(ctx context.Context) error {
		existing, err := r.getActive(ctx, primaryID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !cfg.Migrate {
				return ErrAlreadyAssociated
			}
			if err := r.terminate(ctx, existing.Id); err != nil {
				return err
			}
		}

		// a standby belongs to exactly one association at a time
		var inUse int64
		if err := r.DB(ctx).Model(&model.StandbyAssociation{}).
			Where("standby_instance_id = ? AND status = ?", standbyID, model.AssociationStatusActive).
			Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return ErrStandbyInUse
		}

		now := time.Now()
		assoc := &model.StandbyAssociation{
			PrimaryInstanceID:   primaryID,
			StandbyInstanceID:   standbyID,
			SyncState:           model.SyncStateInitialSync,
			Status:              model.AssociationStatusActive,
			SyncIntervalSeconds: cfg.SyncIntervalSeconds,
			AutoFailover:        cfg.AutoFailover,
			AutoRecovery:        cfg.AutoRecovery,
			ProviderZone:        cfg.ProviderZone,
			MachineType:         cfg.MachineType,
			CreateTime:          now,
			UpdateTime:          now,
		}
		if err := r.DB(ctx).Create(assoc).Error; err != nil {
			return err
		}
		created = assoc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *standbyAssociationRepository) getActive(ctx context.Context, primaryID string) (*model.StandbyAssociation, error) {
	var assoc model.StandbyAssociation
	err := r.DB(ctx).
		Where("primary_instance_id = ? AND status = ?", primaryID, model.AssociationStatusActive).
		First(&assoc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assoc, nil
}

func (r *standbyAssociationRepository) GetAssociation(ctx context.Context, primaryID string) (*model.StandbyAssociation, error) {
	assoc, err := r.getActive(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	if assoc == nil {
		return nil, ErrAssociationNotFound
	}
	return assoc, nil
}

func (r *standbyAssociationRepository) ListActive(ctx context.Context) ([]*model.StandbyAssociation, error) {
	var assocs []*model.StandbyAssociation
	if err := r.DB(ctx).Where("status = ?", model.AssociationStatusActive).Find(&assocs).Error; err != nil {
		return nil, err
	}
	return assocs, nil
}

func (r *standbyAssociationRepository) UpdateSyncState(ctx context.Context, primaryID, state string) error {
	res := r.DB(ctx).Model(&model.StandbyAssociation{}).
		Where("primary_instance_id = ? AND status = ?", primaryID, model.AssociationStatusActive).
		Updates(map[string]interface{}{
			"sync_state":   state,
			"gmt_modified": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAssociationNotFound
	}
	return nil
}

func (r *standbyAssociationRepository) RecordSyncProgress(ctx context.Context, primaryID string, bytesSynced int64, at time.Time) error {
	return r.DB(ctx).Model(&model.StandbyAssociation{}).
		Where("primary_instance_id = ? AND status = ?", primaryID, model.AssociationStatusActive).
		Updates(map[string]interface{}{
			"last_sync_at":       at,
			"bytes_synced_total": gorm.Expr("bytes_synced_total + ?", bytesSynced),
			"gmt_modified":       time.Now(),
		}).Error
}

// ReplacePrimary repoints the association after a successful failover: the
// replacement GPU becomes the new primary of the same standby.
func (r *standbyAssociationRepository) ReplacePrimary(ctx context.Context, oldPrimaryID, newPrimaryID string) error {
	res := r.DB(ctx).Model(&model.StandbyAssociation{}).
		Where("primary_instance_id = ? AND status = ?", oldPrimaryID, model.AssociationStatusActive).
		Updates(map[string]interface{}{
			"primary_instance_id": newPrimaryID,
			"sync_state":          model.SyncStateInitialSync,
			"gmt_modified":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAssociationNotFound
	}
	return nil
}

func (r *standbyAssociationRepository) Dissociate(ctx context.Context, primaryID string) error {
	assoc, err := r.getActive(ctx, primaryID)
	if err != nil {
		return err
	}
	if assoc == nil {
		return ErrAssociationNotFound
	}
	return r.terminate(ctx, assoc.Id)
}

func (r *standbyAssociationRepository) terminate(ctx context.Context, id int64) error {
	return r.DB(ctx).Model(&model.StandbyAssociation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.AssociationStatusTerminated,
			"gmt_modified": time.Now(),
		}).Error
}
