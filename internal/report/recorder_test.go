package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*Recorder, *Hub, repository.FailoverEventRepository) {
	t.Helper()
	conf := viper.New()
	conf.Set("data.db.user.driver", "sqlite")
	conf.Set("data.db.user.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	conf.Set("report.buffer_size", 8)
	conf.Set("report.max_retries", 2)
	logger := log.NewLog(conf)

	db := repository.NewDB(conf, logger)
	require.NoError(t, db.AutoMigrate(&model.FailoverEvent{}))
	eventRepo := repository.NewFailoverEventRepository(repository.NewRepository(logger, db))

	hub := NewHub()
	recorder := NewRecorder(conf, eventRepo, hub, logger)
	t.Cleanup(recorder.Close)
	return recorder, hub, eventRepo
}

func TestRecordSyncCreatesThenUpdates(t *testing.T) {
	recorder, hub, eventRepo := newTestRecorder(t)
	ctx := context.Background()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	event := &model.FailoverEvent{
		EventID:           "evt-1",
		PrimaryInstanceID: "gpu-1",
		Reason:            model.ReasonSpotPreemption,
		Status:            model.FailoverStatusInProgress,
		StartedAt:         time.Now(),
	}
	require.NoError(t, recorder.RecordSync(ctx, event))

	select {
	case got := <-sub:
		assert.Equal(t, "evt-1", got.EventID)
	case <-time.After(time.Second):
		t.Fatal("subscriber saw no broadcast")
	}

	event.Status = model.FailoverStatusSuccess
	event.NewInstanceID = "gpu-2"
	require.NoError(t, recorder.RecordSync(ctx, event))

	stored, err := eventRepo.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.FailoverStatusSuccess, stored.Status)
	assert.Equal(t, "gpu-2", stored.NewInstanceID)
}

func TestRecordAsyncPersistsInBackground(t *testing.T) {
	recorder, _, eventRepo := newTestRecorder(t)

	recorder.RecordAsync(&model.FailoverEvent{
		EventID:           "evt-async",
		PrimaryInstanceID: "gpu-1",
		Reason:            model.ReasonNetworkTimeout,
		Status:            model.FailoverStatusFailed,
		StartedAt:         time.Now(),
		FailureReason:     "no_gpu_available",
	})

	require.Eventually(t, func() bool {
		got, err := eventRepo.GetByEventID(context.Background(), "evt-async")
		return err == nil && got != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestHubSkipsSlowSubscribers(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe()
	defer hub.Unsubscribe(slow)

	// fill the subscriber's buffer, further broadcasts must not block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Broadcast(&model.FailoverEvent{EventID: "evt"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}
