package repository

import (
	"context"
	"errors"
	"time"

	"gpustandby/internal/model"
	"gpustandby/pkg/hash"

	"gorm.io/gorm"
)

type InstanceRepository interface {
	Create(ctx context.Context, inst *model.Instance) error
	Update(ctx context.Context, inst *model.Instance) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Instance, error)
	GetByInstanceID(ctx context.Context, instanceID string) (*model.Instance, error)
	ListByState(ctx context.Context, state string) ([]*model.Instance, error)
	ListWithPagination(ctx context.Context, page, pageSize int, provider, state string) ([]*model.Instance, int64, error)
	UpdateState(ctx context.Context, instanceID, state string) error
	Upsert(ctx context.Context, inst *model.Instance) error
}

func NewInstanceRepository(r *Repository) InstanceRepository {
	return &instanceRepository{Repository: r}
}

type instanceRepository struct {
	*Repository
}

func (r *instanceRepository) Create(ctx context.Context, inst *model.Instance) error {
	return r.DB(ctx).Create(inst).Error
}

func (r *instanceRepository) Update(ctx context.Context, inst *model.Instance) error {
	return r.DB(ctx).Save(inst).Error
}

func (r *instanceRepository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Delete(&model.Instance{}, id).Error
}

func (r *instanceRepository) GetByID(ctx context.Context, id int64) (*model.Instance, error) {
	var inst model.Instance
	if err := r.DB(ctx).Where("id = ?", id).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetByInstanceID(ctx context.Context, instanceID string) (*model.Instance, error) {
	var inst model.Instance
	if err := r.DB(ctx).Where("instance_id = ?", instanceID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) ListByState(ctx context.Context, state string) ([]*model.Instance, error) {
	var insts []*model.Instance
	if err := r.DB(ctx).Where("state = ?", state).Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

func (r *instanceRepository) ListWithPagination(ctx context.Context, page, pageSize int, provider, state string) ([]*model.Instance, int64, error) {
	query := r.DB(ctx).Model(&model.Instance{})
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var insts []*model.Instance
	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&insts).Error; err != nil {
		return nil, 0, err
	}
	return insts, total, nil
}

func (r *instanceRepository) UpdateState(ctx context.Context, instanceID, state string) error {
	return r.DB(ctx).Model(&model.Instance{}).
		Where("instance_id = ?", instanceID).
		Updates(map[string]interface{}{
			"state":        state,
			"gmt_modified": time.Now(),
		}).Error
}

// Upsert writes the instance only when its resource hash changed, so pollers
// can report at a high rate without churning rows.
func (r *instanceRepository) Upsert(ctx context.Context, inst *model.Instance) error {
	resourceHash, err := hash.CalculateResourceHash(inst)
	if err != nil {
		return err
	}

	existing, err := r.GetByInstanceID(ctx, inst.InstanceID)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		inst.ResourceHash = resourceHash
		inst.CreateTime = now
		inst.UpdateTime = now
		inst.LastSyncTime = now
		return r.DB(ctx).Create(inst).Error
	}
	if existing.ResourceHash == resourceHash {
		return r.DB(ctx).Model(&model.Instance{}).
			Where("id = ?", existing.Id).
			Update("last_sync_time", now).Error
	}
	inst.Id = existing.Id
	inst.CreateTime = existing.CreateTime
	inst.ResourceHash = resourceHash
	inst.UpdateTime = now
	inst.LastSyncTime = now
	return r.DB(ctx).Save(inst).Error
}
