package repository

import (
	"context"
	"testing"
	"time"

	"gpustandby/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, repo FailoverEventRepository, eventID, primaryID, status, reason string, startedAt time.Time, totalMs int64) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &model.FailoverEvent{
		EventID:           eventID,
		PrimaryInstanceID: primaryID,
		Reason:            reason,
		Status:            status,
		StartedAt:         startedAt,
		TotalTimeMs:       totalMs,
	}))
}

func TestEventTerminalRowsAreAppendOnly(t *testing.T) {
	repo, _ := newTestRepository(t)
	eventRepo := NewFailoverEventRepository(repo)
	ctx := context.Background()

	event := &model.FailoverEvent{
		EventID:           "evt-1",
		PrimaryInstanceID: "gpu-1",
		Reason:            model.ReasonSpotPreemption,
		Status:            model.FailoverStatusInProgress,
		StartedAt:         time.Now(),
	}
	require.NoError(t, eventRepo.Create(ctx, event))

	inflight, err := eventRepo.GetInProgress(ctx, "gpu-1")
	require.NoError(t, err)
	require.NotNil(t, inflight)
	assert.Equal(t, "evt-1", inflight.EventID)

	event.Status = model.FailoverStatusSuccess
	event.NewInstanceID = "gpu-2"
	require.NoError(t, eventRepo.Update(ctx, event))

	// the terminal row refuses further writes
	event.Status = model.FailoverStatusFailed
	assert.ErrorIs(t, eventRepo.Update(ctx, event), ErrEventTerminal)

	got, err := eventRepo.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.FailoverStatusSuccess, got.Status)
	assert.Equal(t, "gpu-2", got.NewInstanceID)
}

func TestQueryHistoryFilters(t *testing.T) {
	repo, _ := newTestRepository(t)
	eventRepo := NewFailoverEventRepository(repo)
	ctx := context.Background()
	now := time.Now()

	seedEvent(t, eventRepo, "evt-1", "gpu-1", model.FailoverStatusSuccess, model.ReasonSpotPreemption, now.Add(-3*time.Hour), 40000)
	seedEvent(t, eventRepo, "evt-2", "gpu-1", model.FailoverStatusFailed, model.ReasonNetworkTimeout, now.Add(-2*time.Hour), 0)
	seedEvent(t, eventRepo, "evt-3", "gpu-2", model.FailoverStatusSuccess, model.ReasonSpotPreemption, now.Add(-time.Hour), 60000)

	events, total, err := eventRepo.QueryHistory(ctx, &HistoryFilter{PrimaryInstanceID: "gpu-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, events, 2)
	// newest first
	assert.Equal(t, "evt-2", events[0].EventID)

	events, total, err = eventRepo.QueryHistory(ctx, &HistoryFilter{Status: model.FailoverStatusSuccess})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	events, total, err = eventRepo.QueryHistory(ctx, &HistoryFilter{Since: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "evt-3", events[0].EventID)

	events, total, err = eventRepo.QueryHistory(ctx, &HistoryFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].EventID)
}

func TestEventStats(t *testing.T) {
	repo, _ := newTestRepository(t)
	eventRepo := NewFailoverEventRepository(repo)
	ctx := context.Background()
	now := time.Now()

	seedEvent(t, eventRepo, "evt-1", "gpu-1", model.FailoverStatusSuccess, model.ReasonSpotPreemption, now.Add(-time.Hour), 30000)
	seedEvent(t, eventRepo, "evt-2", "gpu-2", model.FailoverStatusSuccess, model.ReasonSpotPreemption, now.Add(-time.Hour), 50000)
	seedEvent(t, eventRepo, "evt-3", "gpu-3", model.FailoverStatusFailed, model.ReasonNetworkTimeout, now.Add(-time.Hour), 0)
	seedEvent(t, eventRepo, "evt-4", "gpu-4", model.FailoverStatusInProgress, model.ReasonHostMaintenance, now, 0)
	// outside the window, must not count
	seedEvent(t, eventRepo, "evt-0", "gpu-0", model.FailoverStatusFailed, model.ReasonProviderError, now.Add(-48*time.Hour), 0)

	stats, err := eventRepo.Stats(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 2, stats.Success)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.InProgress)
	assert.InDelta(t, 40000, stats.AvgTotalTimeMs, 0.1)
	assert.EqualValues(t, 2, stats.ByReason[model.ReasonSpotPreemption])
	assert.EqualValues(t, 1, stats.ByReason[model.ReasonNetworkTimeout])
}
