package service

import (
	"context"
	"errors"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

type InstanceService interface {
	CreateInstance(ctx context.Context, req *v1.CreateInstanceRequest) (*v1.CreateInstanceResponseData, error)
	GetInstance(ctx context.Context, instanceID string) (*v1.InstanceDetail, error)
	ListInstances(ctx context.Context, req *v1.ListInstanceRequest) (*v1.ListInstanceResponseData, error)
	DestroyInstance(ctx context.Context, instanceID string) error
	ListOffers(ctx context.Context, req *v1.ListOffersRequest) ([]*v1.OfferDetail, error)
}

func NewInstanceService(
	service *Service,
	providers *compute.Registry,
	instanceRepo repository.InstanceRepository,
	assocRepo repository.StandbyAssociationRepository,
	standbyService StandbyService,
	snapshots *snapshot.Engine,
	syncEngine *syncer.Engine,
	logger *log.Logger,
) InstanceService {
	return &instanceService{
		Service:        service,
		providers:      providers,
		instanceRepo:   instanceRepo,
		assocRepo:      assocRepo,
		standbyService: standbyService,
		snapshots:      snapshots,
		syncEngine:     syncEngine,
		logger:         logger,
		retry:          compute.DefaultRetryPolicy(),
	}
}

type instanceService struct {
	*Service
	providers      *compute.Registry
	instanceRepo   repository.InstanceRepository
	assocRepo      repository.StandbyAssociationRepository
	standbyService StandbyService
	snapshots      *snapshot.Engine
	syncEngine     *syncer.Engine
	logger         *log.Logger
	retry          compute.RetryPolicy
}

func (s *instanceService) CreateInstance(ctx context.Context, req *v1.CreateInstanceRequest) (*v1.CreateInstanceResponseData, error) {
	provider, err := s.providers.Get(compute.ProviderSpotGPU)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	token, err := s.sid.GenString()
	if err != nil {
		return nil, v1.ErrInternalServerError
	}

	spec := &compute.InstanceSpec{
		RequestToken: token,
		GpuType:      req.GpuType,
		GpuCount:     req.GpuCount,
		VRAMGb:       req.VRAMGb,
		Region:       req.Region,
		DiskGb:       req.DiskGb,
		MaxHourly:    req.MaxHourly,
		Image:        req.Image,
	}
	var created *compute.Instance
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var createErr error
		created, createErr = provider.CreateInstance(ctx, spec)
		return createErr
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("provider.CreateInstance error", zap.Error(err))
		return nil, mapComputeError(err)
	}

	inst := &model.Instance{
		InstanceID:   created.ID,
		Provider:     string(compute.ProviderSpotGPU),
		GpuType:      created.GpuType,
		GpuCount:     req.GpuCount,
		VRAMGb:       req.VRAMGb,
		State:        string(created.State),
		IPAddress:    created.IPAddress,
		Region:       created.Region,
		HourlyCost:   created.HourlyCost,
		WorkspaceDir: s.snapshots.WorkspacePath(created.ID),
	}
	if err := s.instanceRepo.Upsert(ctx, inst); err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.Upsert error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	data := &v1.CreateInstanceResponseData{Instance: toInstanceDetail(inst)}
	if req.Standby != nil && req.Standby.Enabled {
		standby, err := s.standbyService.Associate(ctx, &v1.AssociateStandbyRequest{
			PrimaryInstanceID:   inst.InstanceID,
			MachineType:         req.Standby.MachineType,
			ProviderZone:        req.Standby.ProviderZone,
			SyncIntervalSeconds: req.Standby.SyncIntervalSeconds,
			AutoFailover:        req.Standby.AutoFailover,
			AutoRecovery:        req.Standby.AutoRecovery,
		})
		if err != nil {
			return nil, err
		}
		standbyInst, err := s.instanceRepo.GetByInstanceID(ctx, standby.StandbyInstanceID)
		if err != nil || standbyInst == nil {
			s.logger.WithContext(ctx).Error("standby instance lookup error", zap.Error(err))
			return nil, v1.ErrInternalServerError
		}
		data.Standby = toInstanceDetail(standbyInst)
	}
	return data, nil
}

func (s *instanceService) GetInstance(ctx context.Context, instanceID string) (*v1.InstanceDetail, error) {
	inst, err := s.instanceRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.GetByInstanceID error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if inst == nil {
		return nil, v1.ErrInstanceNotFound
	}
	return toInstanceDetail(inst), nil
}

func (s *instanceService) ListInstances(ctx context.Context, req *v1.ListInstanceRequest) (*v1.ListInstanceResponseData, error) {
	insts, total, err := s.instanceRepo.ListWithPagination(ctx, req.Page, req.PageSize, req.Provider, req.State)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.ListWithPagination error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	list := make([]*v1.InstanceDetail, 0, len(insts))
	for _, inst := range insts {
		list = append(list, toInstanceDetail(inst))
	}
	return &v1.ListInstanceResponseData{List: list, Total: total}, nil
}

func (s *instanceService) DestroyInstance(ctx context.Context, instanceID string) error {
	inst, err := s.instanceRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.GetByInstanceID error", zap.Error(err))
		return v1.ErrInternalServerError
	}
	if inst == nil {
		return v1.ErrInstanceNotFound
	}

	// an associated primary drags its standby pairing down with it
	if _, err := s.assocRepo.GetAssociation(ctx, instanceID); err == nil {
		if err := s.standbyService.Dissociate(ctx, instanceID, false); err != nil {
			return err
		}
	} else if !errors.Is(err, repository.ErrAssociationNotFound) {
		s.logger.WithContext(ctx).Error("assocRepo.GetAssociation error", zap.Error(err))
		return v1.ErrInternalServerError
	}

	provider, err := s.providers.Get(compute.ProviderKind(inst.Provider))
	if err == nil {
		if err := provider.DestroyInstance(ctx, instanceID); err != nil && !errors.Is(err, compute.ErrInstanceNotFound) {
			s.logger.WithContext(ctx).Error("provider.DestroyInstance error", zap.Error(err))
			return mapComputeError(err)
		}
	}
	if err := s.instanceRepo.UpdateState(ctx, instanceID, model.InstanceStateDestroyed); err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.UpdateState error", zap.Error(err))
		return v1.ErrInternalServerError
	}
	return nil
}

func (s *instanceService) ListOffers(ctx context.Context, req *v1.ListOffersRequest) ([]*v1.OfferDetail, error) {
	provider, err := s.providers.Get(compute.ProviderSpotGPU)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	offers, err := provider.ListOffers(ctx, &compute.OfferFilter{
		GpuType:   req.GpuType,
		MinVRAMGb: req.MinVRAMGb,
		Region:    req.Region,
		MaxHourly: req.MaxHourly,
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("provider.ListOffers error", zap.Error(err))
		return nil, mapComputeError(err)
	}
	list := make([]*v1.OfferDetail, 0, len(offers))
	for _, o := range offers {
		list = append(list, &v1.OfferDetail{
			ID:         o.ID,
			GpuType:    o.GpuType,
			GpuCount:   o.GpuCount,
			VRAMGb:     o.VRAMGb,
			Region:     o.Region,
			HourlyCost: o.HourlyCost,
			Verified:   o.Verified,
		})
	}
	return list, nil
}

func toInstanceDetail(inst *model.Instance) *v1.InstanceDetail {
	return &v1.InstanceDetail{
		InstanceID:   inst.InstanceID,
		Provider:     inst.Provider,
		GpuType:      inst.GpuType,
		GpuCount:     inst.GpuCount,
		VRAMGb:       inst.VRAMGb,
		State:        inst.State,
		IPAddress:    inst.IPAddress,
		Region:       inst.Region,
		HourlyCost:   inst.HourlyCost,
		WorkspaceDir: inst.WorkspaceDir,
		CreateTime:   inst.CreateTime,
	}
}

func mapComputeError(err error) error {
	switch {
	case errors.Is(err, compute.ErrNoCapacity):
		return v1.ErrNoCapacity
	case errors.Is(err, compute.ErrProviderUnavailable):
		return v1.ErrProviderUnavailable
	case errors.Is(err, compute.ErrInstanceNotFound):
		return v1.ErrInstanceNotFound
	default:
		return v1.ErrInternalServerError
	}
}
