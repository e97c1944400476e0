package service

import (
	"context"
	"errors"
	"time"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/model"
	"gpustandby/internal/orchestrator"
	"gpustandby/internal/repository"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

type FailoverService interface {
	Trigger(ctx context.Context, req *v1.TriggerFailoverRequest) (*v1.TriggerFailoverResponseData, error)
	Cancel(ctx context.Context, primaryID string) error
	GetEvent(ctx context.Context, eventID string) (*v1.FailoverEventDetail, error)
	History(ctx context.Context, req *v1.ListFailoverRequest) (*v1.ListFailoverResponseData, error)
	Stats(ctx context.Context, req *v1.FailoverStatsRequest) (*v1.FailoverStatsData, error)
}

func NewFailoverService(
	service *Service,
	manager *orchestrator.Manager,
	eventRepo repository.FailoverEventRepository,
	logger *log.Logger,
) FailoverService {
	return &failoverService{
		Service:   service,
		manager:   manager,
		eventRepo: eventRepo,
		logger:    logger,
	}
}

type failoverService struct {
	*Service
	manager   *orchestrator.Manager
	eventRepo repository.FailoverEventRepository
	logger    *log.Logger
}

// Trigger starts an operator-initiated failover. Operator intent counts as a
// confirmed failure; the machine skips its probe-based confirmation.
func (s *failoverService) Trigger(ctx context.Context, req *v1.TriggerFailoverRequest) (*v1.TriggerFailoverResponseData, error) {
	reason := req.Reason
	if reason == "" {
		reason = model.ReasonUnknown
	}
	eventID, err := s.manager.Trigger(ctx, req.PrimaryInstanceID, reason, true)
	if err != nil {
		s.logger.WithContext(ctx).Error("manager.Trigger error", zap.Error(err))
		switch {
		case errors.Is(err, orchestrator.ErrFailoverInProgress):
			return nil, v1.ErrFailoverInProgress
		case errors.Is(err, repository.ErrAssociationNotFound):
			return nil, v1.ErrAssociationNotFound
		case errors.Is(err, compute.ErrInstanceNotFound):
			return nil, v1.ErrInstanceNotFound
		default:
			return nil, v1.ErrInternalServerError
		}
	}
	return &v1.TriggerFailoverResponseData{EventID: eventID}, nil
}

func (s *failoverService) Cancel(ctx context.Context, primaryID string) error {
	if err := s.manager.Cancel(primaryID); err != nil {
		if errors.Is(err, orchestrator.ErrNoFailoverRunning) {
			return v1.ErrNoFailoverRunning
		}
		s.logger.WithContext(ctx).Error("manager.Cancel error", zap.Error(err))
		return v1.ErrInternalServerError
	}
	return nil
}

func (s *failoverService) GetEvent(ctx context.Context, eventID string) (*v1.FailoverEventDetail, error) {
	event, err := s.eventRepo.GetByEventID(ctx, eventID)
	if err != nil {
		s.logger.WithContext(ctx).Error("eventRepo.GetByEventID error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if event == nil {
		return nil, v1.ErrEventNotFound
	}
	return toFailoverEventDetail(event), nil
}

func (s *failoverService) History(ctx context.Context, req *v1.ListFailoverRequest) (*v1.ListFailoverResponseData, error) {
	filter := &repository.HistoryFilter{
		PrimaryInstanceID: req.PrimaryInstanceID,
		Status:            req.Status,
		Page:              req.Page,
		PageSize:          req.PageSize,
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, v1.ErrBadRequest
		}
		filter.Since = since
	}
	if req.Until != "" {
		until, err := time.Parse(time.RFC3339, req.Until)
		if err != nil {
			return nil, v1.ErrBadRequest
		}
		filter.Until = until
	}

	events, total, err := s.eventRepo.QueryHistory(ctx, filter)
	if err != nil {
		s.logger.WithContext(ctx).Error("eventRepo.QueryHistory error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	list := make([]*v1.FailoverEventDetail, 0, len(events))
	for _, event := range events {
		list = append(list, toFailoverEventDetail(event))
	}
	return &v1.ListFailoverResponseData{List: list, Total: total}, nil
}

func (s *failoverService) Stats(ctx context.Context, req *v1.FailoverStatsRequest) (*v1.FailoverStatsData, error) {
	var since time.Time
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, v1.ErrBadRequest
		}
		since = parsed
	}
	stats, err := s.eventRepo.Stats(ctx, since)
	if err != nil {
		s.logger.WithContext(ctx).Error("eventRepo.Stats error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	data := &v1.FailoverStatsData{
		Total:          stats.Total,
		Success:        stats.Success,
		Failed:         stats.Failed,
		InProgress:     stats.InProgress,
		AvgTotalTimeMs: stats.AvgTotalTimeMs,
		ByReason:       stats.ByReason,
	}
	if terminal := stats.Success + stats.Failed; terminal > 0 {
		data.SuccessRate = float64(stats.Success) / float64(terminal)
	}
	return data, nil
}

func toFailoverEventDetail(event *model.FailoverEvent) *v1.FailoverEventDetail {
	detail := &v1.FailoverEventDetail{
		EventID:           event.EventID,
		PrimaryInstanceID: event.PrimaryInstanceID,
		Reason:            event.Reason,
		Status:            event.Status,
		StartedAt:         event.StartedAt,
		Phases:            event.PhaseDurations(),
		TotalTimeMs:       event.TotalTimeMs,
		NewInstanceID:     event.NewInstanceID,
		DataRestoredBytes: event.DataRestoredBytes,
		FilesSyncedCount:  event.FilesSyncedCount,
		FailureReason:     event.FailureReason,
	}
	if !event.FinishedAt.IsZero() {
		finished := event.FinishedAt
		detail.FinishedAt = &finished
	}
	return detail
}
