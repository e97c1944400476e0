package repository

import (
	"context"
	"errors"
	"time"

	"gpustandby/internal/model"

	"gorm.io/gorm"
)

// ErrEventTerminal: the event already reached SUCCESS or FAILED; terminal
// events are append-only and must not be rewritten.
var ErrEventTerminal = errors.New("repository: failover event already terminal")

// HistoryFilter narrows QueryHistory for the reporting UI.
type HistoryFilter struct {
	PrimaryInstanceID string
	Status            string
	Since             time.Time
	Until             time.Time
	Page              int
	PageSize          int
}

// EventStats aggregates failover outcomes for the reporting endpoints.
type EventStats struct {
	Total          int64
	Success        int64
	Failed         int64
	InProgress     int64
	AvgTotalTimeMs float64
	ByReason       map[string]int64
}

type FailoverEventRepository interface {
	Create(ctx context.Context, event *model.FailoverEvent) error
	Update(ctx context.Context, event *model.FailoverEvent) error
	GetByEventID(ctx context.Context, eventID string) (*model.FailoverEvent, error)
	GetInProgress(ctx context.Context, primaryID string) (*model.FailoverEvent, error)
	QueryHistory(ctx context.Context, filter *HistoryFilter) ([]*model.FailoverEvent, int64, error)
	Stats(ctx context.Context, since time.Time) (*EventStats, error)
}

func NewFailoverEventRepository(r *Repository) FailoverEventRepository {
	return &failoverEventRepository{Repository: r}
}

type failoverEventRepository struct {
	*Repository
}

func (r *failoverEventRepository) Create(ctx context.Context, event *model.FailoverEvent) error {
	now := time.Now()
	event.CreateTime = now
	event.UpdateTime = now
	return r.DB(ctx).Create(event).Error
}

// Update refuses to touch a row that is already terminal in the database.
func (r *failoverEventRepository) Update(ctx context.Context, event *model.FailoverEvent) error {
	existing, err := r.GetByEventID(ctx, event.EventID)
	if err != nil {
		return err
	}
	if existing == nil {
		return gorm.ErrRecordNotFound
	}
	if existing.Terminal() {
		return ErrEventTerminal
	}
	event.Id = existing.Id
	event.CreateTime = existing.CreateTime
	event.UpdateTime = time.Now()
	return r.DB(ctx).Save(event).Error
}

func (r *failoverEventRepository) GetByEventID(ctx context.Context, eventID string) (*model.FailoverEvent, error) {
	var event model.FailoverEvent
	if err := r.DB(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *failoverEventRepository) GetInProgress(ctx context.Context, primaryID string) (*model.FailoverEvent, error) {
	var event model.FailoverEvent
	err := r.DB(ctx).
		Where("primary_instance_id = ? AND status = ?", primaryID, model.FailoverStatusInProgress).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *failoverEventRepository) QueryHistory(ctx context.Context, filter *HistoryFilter) ([]*model.FailoverEvent, int64, error) {
	if filter == nil {
		filter = &HistoryFilter{}
	}
	query := r.DB(ctx).Model(&model.FailoverEvent{})
	if filter.PrimaryInstanceID != "" {
		query = query.Where("primary_instance_id = ?", filter.PrimaryInstanceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.Since.IsZero() {
		query = query.Where("started_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("started_at <= ?", filter.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var events []*model.FailoverEvent
	if err := query.Order("started_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *failoverEventRepository) Stats(ctx context.Context, since time.Time) (*EventStats, error) {
	base := func() *gorm.DB {
		q := r.DB(ctx).Model(&model.FailoverEvent{})
		if !since.IsZero() {
			q = q.Where("started_at >= ?", since)
		}
		return q
	}

	stats := &EventStats{ByReason: make(map[string]int64)}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", model.FailoverStatusSuccess).Count(&stats.Success).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", model.FailoverStatusFailed).Count(&stats.Failed).Error; err != nil {
		return nil, err
	}
	stats.InProgress = stats.Total - stats.Success - stats.Failed

	if stats.Success > 0 {
		var avg float64
		if err := base().Where("status = ?", model.FailoverStatusSuccess).
			Select("AVG(total_time_ms)").Scan(&avg).Error; err != nil {
			return nil, err
		}
		stats.AvgTotalTimeMs = avg
	}

	var rows []struct {
		Reason string
		Cnt    int64
	}
	if err := base().Select("reason, COUNT(*) AS cnt").Group("reason").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByReason[row.Reason] = row.Cnt
	}
	return stats, nil
}
