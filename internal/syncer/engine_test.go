package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/notify"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncer(t *testing.T) (*Engine, *MemoryTransport, repository.StandbyAssociationRepository) {
	t.Helper()
	conf := viper.New()
	conf.Set("data.db.user.driver", "sqlite")
	conf.Set("data.db.user.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	conf.Set("sync.max_failures", 2)
	logger := log.NewLog(conf)

	db := repository.NewDB(conf, logger)
	require.NoError(t, db.AutoMigrate(&model.StandbyAssociation{}))
	repo := repository.NewRepository(logger, db)
	assocRepo := repository.NewStandbyAssociationRepository(repo, repository.NewTransaction(repo))

	transport := NewMemoryTransport()
	engine := NewEngine(conf, assocRepo, transport, notify.NewNotifier(conf, logger), logger)
	return engine, transport, assocRepo
}

func TestMirrorOnceCopiesOnlyChangedFiles(t *testing.T) {
	engine, transport, _ := newTestSyncer(t)
	ctx := context.Background()
	mtime := time.Now().Truncate(time.Second)

	transport.PutFile("gpu-1", FileInfo{Path: "model.ckpt", ModTime: mtime}, []byte("weights-v1"))
	transport.PutFile("gpu-1", FileInfo{Path: "logs/train.log", ModTime: mtime}, []byte("epoch 1"))

	bytesCopied, filesCopied, err := engine.MirrorOnce(ctx, "gpu-1", "cpu-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, filesCopied)
	assert.EqualValues(t, len("weights-v1")+len("epoch 1"), bytesCopied)

	// nothing changed: the second pass moves nothing
	bytesCopied, filesCopied, err = engine.MirrorOnce(ctx, "gpu-1", "cpu-1")
	require.NoError(t, err)
	assert.Zero(t, filesCopied)
	assert.Zero(t, bytesCopied)

	// touch one file, only it transfers
	transport.PutFile("gpu-1", FileInfo{Path: "logs/train.log", ModTime: mtime.Add(time.Minute)}, []byte("epoch 2!"))
	bytesCopied, filesCopied, err = engine.MirrorOnce(ctx, "gpu-1", "cpu-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, filesCopied)
	assert.EqualValues(t, len("epoch 2!"), bytesCopied)

	data, ok := transport.FileData("cpu-1", "logs/train.log")
	require.True(t, ok)
	assert.Equal(t, []byte("epoch 2!"), data)
}

func TestRunCycleMarksReadyThenStale(t *testing.T) {
	engine, transport, assocRepo := newTestSyncer(t)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)
	transport.PutFile("gpu-1", FileInfo{Path: "model.ckpt", ModTime: time.Now()}, []byte("weights"))

	task := &task{primaryID: "gpu-1", standbyID: "cpu-1", state: model.SyncStateInitialSync}
	engine.runCycle(task)

	assoc, err := assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateReady, assoc.SyncState)
	assert.EqualValues(t, len("weights"), assoc.BytesSyncedTotal)
	assert.False(t, assoc.LastSyncAt.IsZero())

	// max_failures is 2: the first failed cycle is tolerated
	transport.SetUnreachable("gpu-1", true)
	engine.runCycle(task)
	assoc, err = assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateReady, assoc.SyncState)

	engine.runCycle(task)
	assoc, err = assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateStale, assoc.SyncState)

	// recovery flips the pair back to READY and resets the counter
	transport.SetUnreachable("gpu-1", false)
	engine.runCycle(task)
	assoc, err = assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateReady, assoc.SyncState)
}

func TestSyncStatusConcurrentWithCycles(t *testing.T) {
	engine, transport, assocRepo := newTestSyncer(t)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)
	transport.PutFile("gpu-1", FileInfo{Path: "model.ckpt", ModTime: time.Now()}, []byte("weights"))

	handle, err := engine.StartSync("gpu-1", "cpu-1", 30)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.StopSync(handle) })

	engine.mu.Lock()
	running := engine.tasks[handle]
	engine.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = engine.SyncStatus(handle)
		}
	}()

	// alternating outcomes exercise both state transitions while the
	// reader goroutine polls
	for i := 0; i < 20; i++ {
		transport.SetUnreachable("gpu-1", i%2 == 1)
		engine.runCycle(running)
	}
	wg.Wait()

	assert.Equal(t, model.SyncStateReady, engine.SyncStatus(handle))
}

func TestStartSyncRejectsDuplicateHandles(t *testing.T) {
	engine, _, _ := newTestSyncer(t)

	handle, err := engine.StartSync("gpu-1", "cpu-1", 30)
	require.NoError(t, err)
	assert.Equal(t, Handle("gpu-1"), handle)
	assert.Equal(t, model.SyncStateInitialSync, engine.SyncStatus(handle))

	_, err = engine.StartSync("gpu-1", "cpu-2", 30)
	assert.Error(t, err)

	require.NoError(t, engine.StopSync(handle))
	assert.Empty(t, engine.SyncStatus(handle))
	assert.Error(t, engine.StopSync(handle))
}
