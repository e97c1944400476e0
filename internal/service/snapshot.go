package service

import (
	"context"
	"errors"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/internal/snapshot"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

type SnapshotService interface {
	CreateSnapshot(ctx context.Context, req *v1.CreateSnapshotRequest) (*v1.SnapshotDetail, error)
	ListSnapshots(ctx context.Context, instanceID string) ([]*v1.SnapshotDetail, error)
	RestoreSnapshot(ctx context.Context, snapshotID, targetInstanceID string) (*v1.RestoreSnapshotResponseData, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

func NewSnapshotService(
	service *Service,
	engine *snapshot.Engine,
	snapshotRepo repository.SnapshotRepository,
	instanceRepo repository.InstanceRepository,
	logger *log.Logger,
) SnapshotService {
	return &snapshotService{
		Service:      service,
		engine:       engine,
		snapshotRepo: snapshotRepo,
		instanceRepo: instanceRepo,
		logger:       logger,
	}
}

type snapshotService struct {
	*Service
	engine       *snapshot.Engine
	snapshotRepo repository.SnapshotRepository
	instanceRepo repository.InstanceRepository
	logger       *log.Logger
}

func (s *snapshotService) CreateSnapshot(ctx context.Context, req *v1.CreateSnapshotRequest) (*v1.SnapshotDetail, error) {
	inst, err := s.instanceRepo.GetByInstanceID(ctx, req.InstanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.GetByInstanceID error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if inst == nil {
		return nil, v1.ErrInstanceNotFound
	}

	workspace := inst.WorkspaceDir
	if workspace == "" {
		workspace = s.engine.WorkspacePath(inst.InstanceID)
	}
	snap, err := s.engine.CreateSnapshot(ctx, inst.InstanceID, workspace)
	if err != nil {
		s.logger.WithContext(ctx).Error("engine.CreateSnapshot error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	return toSnapshotDetail(snap), nil
}

func (s *snapshotService) ListSnapshots(ctx context.Context, instanceID string) ([]*v1.SnapshotDetail, error) {
	snaps, err := s.snapshotRepo.ListBySource(ctx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("snapshotRepo.ListBySource error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	list := make([]*v1.SnapshotDetail, 0, len(snaps))
	for _, snap := range snaps {
		list = append(list, toSnapshotDetail(snap))
	}
	return list, nil
}

func (s *snapshotService) RestoreSnapshot(ctx context.Context, snapshotID, targetInstanceID string) (*v1.RestoreSnapshotResponseData, error) {
	target, err := s.instanceRepo.GetByInstanceID(ctx, targetInstanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("instanceRepo.GetByInstanceID error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if target == nil {
		return nil, v1.ErrInstanceNotFound
	}

	result, err := s.engine.RestoreSnapshot(ctx, snapshotID, targetInstanceID)
	if err != nil {
		s.logger.WithContext(ctx).Error("engine.RestoreSnapshot error", zap.Error(err))
		switch {
		case errors.Is(err, snapshot.ErrCorruptSnapshot):
			return nil, v1.ErrCorruptSnapshot
		default:
			return nil, v1.ErrInternalServerError
		}
	}
	return &v1.RestoreSnapshotResponseData{RestoredBytes: result.Bytes, RestoredFiles: result.Files}, nil
}

func (s *snapshotService) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	snap, err := s.snapshotRepo.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		s.logger.WithContext(ctx).Error("snapshotRepo.GetBySnapshotID error", zap.Error(err))
		return v1.ErrInternalServerError
	}
	if snap == nil {
		return v1.ErrSnapshotNotFound
	}
	if err := s.engine.DeleteSnapshot(ctx, snapshotID); err != nil {
		s.logger.WithContext(ctx).Error("engine.DeleteSnapshot error", zap.Error(err))
		return v1.ErrInternalServerError
	}
	return nil
}

func toSnapshotDetail(snap *model.Snapshot) *v1.SnapshotDetail {
	return &v1.SnapshotDetail{
		SnapshotID:       snap.SnapshotID,
		SourceInstanceID: snap.SourceInstanceID,
		SizeBytes:        snap.SizeBytes,
		FileCount:        snap.FileCount,
		Compression:      snap.Compression,
		Checksum:         snap.Checksum,
		StorageURI:       snap.StorageURI,
		CreateTime:       snap.CreateTime,
	}
}
