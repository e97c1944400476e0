package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"
	"gpustandby/pkg/sid"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, compression string) (*Engine, *MemoryStore, repository.SnapshotRepository) {
	t.Helper()
	conf := viper.New()
	conf.Set("data.db.user.driver", "sqlite")
	conf.Set("data.db.user.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	conf.Set("storage.workspace_root", t.TempDir())
	conf.Set("storage.compression", compression)
	logger := log.NewLog(conf)

	db := repository.NewDB(conf, logger)
	require.NoError(t, db.AutoMigrate(&model.Snapshot{}))
	snapRepo := repository.NewSnapshotRepository(repository.NewRepository(logger, db))

	store := NewMemoryStore()
	return NewEngine(conf, store, snapRepo, sid.NewSid(), logger), store, snapRepo
}

func writeWorkspace(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, compression := range []string{model.CompressionLZ4, model.CompressionGZIP} {
		t.Run(compression, func(t *testing.T) {
			engine, _, _ := newTestEngine(t, compression)
			ctx := context.Background()

			src := engine.WorkspacePath("gpu-1")
			writeWorkspace(t, src, map[string]string{
				"model.ckpt":            "layer weights",
				"logs/train.log":        "epoch 7 loss 0.3",
				"data/shards/part-0000": "tokenized corpus",
			})

			snap, err := engine.CreateSnapshot(ctx, "gpu-1", src)
			require.NoError(t, err)
			assert.Equal(t, compression, snap.Compression)
			assert.EqualValues(t, 3, snap.FileCount)
			assert.Positive(t, snap.SizeBytes)
			assert.NotEmpty(t, snap.Checksum)

			result, err := engine.RestoreSnapshot(ctx, snap.SnapshotID, "gpu-2")
			require.NoError(t, err)
			assert.EqualValues(t, 3, result.Files)

			restored, err := os.ReadFile(filepath.Join(engine.WorkspacePath("gpu-2"), "logs", "train.log"))
			require.NoError(t, err)
			assert.Equal(t, "epoch 7 loss 0.3", string(restored))
		})
	}
}

func TestRestoreRejectsCorruptArchive(t *testing.T) {
	engine, store, _ := newTestEngine(t, model.CompressionLZ4)
	ctx := context.Background()

	src := engine.WorkspacePath("gpu-1")
	writeWorkspace(t, src, map[string]string{"model.ckpt": "layer weights"})
	snap, err := engine.CreateSnapshot(ctx, "gpu-1", src)
	require.NoError(t, err)

	// the target already has data that a failed restore must not clobber
	target := engine.WorkspacePath("gpu-2")
	writeWorkspace(t, target, map[string]string{"existing.txt": "keep me"})

	store.Tamper(snap.StorageURI, []byte("flipped bits"))
	_, err = engine.RestoreSnapshot(ctx, snap.SnapshotID, "gpu-2")
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	kept, err := os.ReadFile(filepath.Join(target, "existing.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(kept))
}

func TestRestoreReplacesTargetWorkspaceAtomically(t *testing.T) {
	engine, _, _ := newTestEngine(t, model.CompressionLZ4)
	ctx := context.Background()

	src := engine.WorkspacePath("gpu-1")
	writeWorkspace(t, src, map[string]string{"fresh.txt": "new state"})
	snap, err := engine.CreateSnapshot(ctx, "gpu-1", src)
	require.NoError(t, err)

	target := engine.WorkspacePath("gpu-2")
	writeWorkspace(t, target, map[string]string{"stale.txt": "old state"})

	_, err = engine.RestoreSnapshot(ctx, snap.SnapshotID, "gpu-2")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(target, "stale.txt"))
	assert.True(t, os.IsNotExist(err), "stale files must not survive a restore")
	fresh, err := os.ReadFile(filepath.Join(target, "fresh.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new state", string(fresh))
}

func TestDeleteSnapshotRemovesArchiveAndRow(t *testing.T) {
	engine, store, snapRepo := newTestEngine(t, model.CompressionLZ4)
	ctx := context.Background()

	src := engine.WorkspacePath("gpu-1")
	writeWorkspace(t, src, map[string]string{"model.ckpt": "layer weights"})
	snap, err := engine.CreateSnapshot(ctx, "gpu-1", src)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteSnapshot(ctx, snap.SnapshotID))

	_, err = store.Get(ctx, snap.StorageURI)
	assert.Error(t, err)
	row, err := snapRepo.GetBySnapshotID(ctx, snap.SnapshotID)
	require.NoError(t, err)
	assert.Nil(t, row)

	// deleting a missing snapshot is a no-op
	require.NoError(t, engine.DeleteSnapshot(ctx, "snap-missing"))
}

func TestGetLatestBySourcePrefersNewest(t *testing.T) {
	engine, _, snapRepo := newTestEngine(t, model.CompressionLZ4)
	ctx := context.Background()

	src := engine.WorkspacePath("gpu-1")
	writeWorkspace(t, src, map[string]string{"a.txt": "v1"})
	first, err := engine.CreateSnapshot(ctx, "gpu-1", src)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	writeWorkspace(t, src, map[string]string{"a.txt": "v2"})
	second, err := engine.CreateSnapshot(ctx, "gpu-1", src)
	require.NoError(t, err)
	require.NotEqual(t, first.SnapshotID, second.SnapshotID)

	latest, err := snapRepo.GetLatestBySource(ctx, "gpu-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.SnapshotID, latest.SnapshotID)
}
