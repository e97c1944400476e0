package service

import (
	"context"
	"errors"
	"time"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type StandbyService interface {
	Associate(ctx context.Context, req *v1.AssociateStandbyRequest) (*v1.StandbyDetail, error)
	GetStandby(ctx context.Context, primaryID string) (*v1.StandbyDetail, error)
	Dissociate(ctx context.Context, primaryID string, destroyStandby bool) error
	SyncNow(ctx context.Context, primaryID string) (*v1.SyncNowResponseData, error)
}

func NewStandbyService(
	service *Service,
	conf *viper.Viper,
	providers *compute.Registry,
	instanceRepo repository.InstanceRepository,
	assocRepo repository.StandbyAssociationRepository,
	snapshots *snapshot.Engine,
	syncEngine *syncer.Engine,
	logger *log.Logger,
) StandbyService {
	return &standbyService{
		Service:      service,
		conf:         conf,
		providers:    providers,
		instanceRepo: instanceRepo,
		assocRepo:    assocRepo,
		snapshots:    snapshots,
		syncEngine:   syncEngine,
		logger:       logger,
		retry:        compute.DefaultRetryPolicy(),
	}
}

type standbyService struct {
	*Service
	conf         *viper.Viper
	providers    *compute.Registry
	instanceRepo repository.InstanceRepository
	assocRepo    repository.StandbyAssociationRepository
	snapshots    *snapshot.Engine
	syncEngine   *syncer.Engine
	logger       *log.Logger
	retry        compute.RetryPolicy
}

func (s *standbyService) Associate(ctx context.Context, req *v1.AssociateStandbyRequest) (*v1.StandbyDetail, error) {
	primary, err := s.instanceRepo.GetByInstanceID(ctx, req.PrimaryInstanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.GetByInstanceID error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if primary == nil {
		return nil, v1.ErrInstanceNotFound
	}

	standbyID := req.StandbyInstanceID
	machineType := req.MachineType
	if machineType == "" {
		machineType = s.conf.GetString("standby.machine_type")
	}
	zone := req.ProviderZone
	if zone == "" {
		zone = s.conf.GetString("standby.zone")
	}
	if standbyID == "" {
		standby, err := s.provisionStandby(ctx, machineType, zone)
		if err != nil {
			return nil, err
		}
		standbyID = standby.InstanceID
	}

	autoFailover := req.AutoFailover == nil || *req.AutoFailover
	autoRecovery := req.AutoRecovery == nil || *req.AutoRecovery
	assoc, err := s.assocRepo.Associate(ctx, req.PrimaryInstanceID, standbyID, &repository.AssociateConfig{
		SyncIntervalSeconds: req.SyncIntervalSeconds,
		AutoFailover:        autoFailover,
		AutoRecovery:        autoRecovery,
		ProviderZone:        zone,
		MachineType:         machineType,
		Migrate:             req.Migrate,
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("assocRepo.Associate error", zap.Error(err))
		return nil, mapAssociationError(err)
	}

	if _, err := s.syncEngine.StartSync(assoc.PrimaryInstanceID, assoc.StandbyInstanceID, assoc.SyncIntervalSeconds); err != nil {
		s.logger.WithContext(ctx).Error("syncEngine.StartSync error", zap.Error(err))
	}
	return s.toStandbyDetail(ctx, assoc), nil
}

// provisionStandby leases a fresh CPU instance for the pairing.
func (s *standbyService) provisionStandby(ctx context.Context, machineType, zone string) (*model.Instance, error) {
	provider, err := s.providers.Get(compute.ProviderCPUStandby)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	token, err := s.sid.GenString()
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	var created *compute.Instance
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var createErr error
		created, createErr = provider.CreateInstance(ctx, &compute.InstanceSpec{
			RequestToken: token,
			MachineType:  machineType,
			Region:       zone,
		})
		return createErr
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("standby CreateInstance error", zap.Error(err))
		return nil, mapComputeError(err)
	}

	inst := &model.Instance{
		InstanceID:   created.ID,
		Provider:     string(compute.ProviderCPUStandby),
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
	return inst, nil
}

func (s *standbyService) GetStandby(ctx context.Context, primaryID string) (*v1.StandbyDetail, error) {
	assoc, err := s.assocRepo.GetAssociation(ctx, primaryID)
	if err != nil {
		if errors.Is(err, repository.ErrAssociationNotFound) {
			return nil, v1.ErrAssociationNotFound
		}
		s.logger.WithContext(ctx).Error("assocRepo.GetAssociation error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	return s.toStandbyDetail(ctx, assoc), nil
}

func (s *standbyService) Dissociate(ctx context.Context, primaryID string, destroyStandby bool) error {
	assoc, err := s.assocRepo.GetAssociation(ctx, primaryID)
	if err != nil {
		if errors.Is(err, repository.ErrAssociationNotFound) {
			return v1.ErrAssociationNotFound
		}
		s.logger.WithContext(ctx).Error("assocRepo.GetAssociation error", zap.Error(err))
		return v1.ErrInternalServerError
	}

	if err := s.syncEngine.StopSync(syncer.Handle(primaryID)); err != nil {
		s.logger.WithContext(ctx).Warn("syncEngine.StopSync error", zap.Error(err))
	}
	if err := s.assocRepo.Dissociate(ctx, primaryID); err != nil {
		s.logger.WithContext(ctx).Error("assocRepo.Dissociate error", zap.Error(err))
		return v1.ErrInternalServerError
	}

	if destroyStandby {
		provider, err := s.providers.Get(compute.ProviderCPUStandby)
		if err == nil {
			if err := provider.DestroyInstance(ctx, assoc.StandbyInstanceID); err != nil && !errors.Is(err, compute.ErrInstanceNotFound) {
				s.logger.WithContext(ctx).Error("standby DestroyInstance error", zap.Error(err))
				return mapComputeError(err)
			}
		}
		if err := s.instanceRepo.UpdateState(ctx, assoc.StandbyInstanceID, model.InstanceStateDestroyed); err != nil {
			s.logger.WithContext(ctx).Error("instanceRepo.UpdateState error", zap.Error(err))
		}
	}
	return nil
}

// SyncNow runs one mirror cycle outside the schedule, for operators who want
// the standby current before a risky operation.
func (s *standbyService) SyncNow(ctx context.Context, primaryID string) (*v1.SyncNowResponseData, error) {
	assoc, err := s.assocRepo.GetAssociation(ctx, primaryID)
	if err != nil {
		if errors.Is(err, repository.ErrAssociationNotFound) {
			return nil, v1.ErrAssociationNotFound
		}
		s.logger.WithContext(ctx).Error("assocRepo.GetAssociation error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	bytesSynced, filesSynced, err := s.syncEngine.MirrorOnce(ctx, assoc.PrimaryInstanceID, assoc.StandbyInstanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("syncEngine.MirrorOnce error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if err := s.assocRepo.RecordSyncProgress(ctx, primaryID, bytesSynced, time.Now()); err != nil {
		s.logger.WithContext(ctx).Error("assocRepo.RecordSyncProgress error", zap.Error(err))
	}
	return &v1.SyncNowResponseData{BytesSynced: bytesSynced, FilesSynced: filesSynced}, nil
}

func (s *standbyService) toStandbyDetail(ctx context.Context, assoc *model.StandbyAssociation) *v1.StandbyDetail {
	detail := &v1.StandbyDetail{
		PrimaryInstanceID:   assoc.PrimaryInstanceID,
		StandbyInstanceID:   assoc.StandbyInstanceID,
		SyncState:           assoc.SyncState,
		Status:              assoc.Status,
		LastSyncAt:          assoc.LastSyncAt,
		SyncIntervalSeconds: assoc.SyncIntervalSeconds,
		BytesSyncedTotal:    assoc.BytesSyncedTotal,
		AutoFailover:        assoc.AutoFailover,
		AutoRecovery:        assoc.AutoRecovery,
		StandbyMachineType:  assoc.MachineType,
	}
	if standby, err := s.instanceRepo.GetByInstanceID(ctx, assoc.StandbyInstanceID); err == nil && standby != nil {
		detail.StandbyIPAddress = standby.IPAddress
	}
	return detail
}

func mapAssociationError(err error) error {
	switch {
	case errors.Is(err, repository.ErrAlreadyAssociated):
		return v1.ErrAlreadyAssociated
	case errors.Is(err, repository.ErrStandbyInUse):
		return v1.ErrStandbyInUse
	case errors.Is(err, repository.ErrAssociationNotFound):
		return v1.ErrAssociationNotFound
	default:
		return v1.ErrInternalServerError
	}
}
