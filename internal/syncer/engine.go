package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/notify"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"

	"github.com/go-co-op/gocron"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Handle identifies a running sync task; it is the primary instance id.
type Handle string

// Engine mirrors primary workspaces onto their CPU standbys on a recurring
// schedule. Each association gets its own gocron job; a slow or dead pair
// never delays the others. Transfers are at-least-once idempotent file
// copies: a cycle killed mid-transfer is simply redone from current file
// state on the next tick.
type Engine struct {
	assocRepo   repository.StandbyAssociationRepository
	transport   Transport
	notifier    *notify.Notifier
	logger      *log.Logger
	scheduler   *gocron.Scheduler
	maxFailures int

	mu    sync.Mutex
	tasks map[Handle]*task
}

type task struct {
	primaryID   string
	standbyID   string
	consecutive int
	state       string
}

func NewEngine(
	conf *viper.Viper,
	assocRepo repository.StandbyAssociationRepository,
	transport Transport,
	notifier *notify.Notifier,
	logger *log.Logger,
) *Engine {
	maxFailures := conf.GetInt("sync.max_failures")
	if maxFailures == 0 {
		maxFailures = 3
	}
	scheduler := gocron.NewScheduler(time.UTC)
	return &Engine{
		assocRepo:   assocRepo,
		transport:   transport,
		notifier:    notifier,
		logger:      logger,
		scheduler:   scheduler,
		maxFailures: maxFailures,
	}
}

// Start resumes sync jobs for every active association and begins scheduling.
// Called once by the orchestrator daemon on boot.
func (e *Engine) Start(ctx context.Context) error {
	assocs, err := e.assocRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, assoc := range assocs {
		if _, err := e.StartSync(assoc.PrimaryInstanceID, assoc.StandbyInstanceID, assoc.SyncIntervalSeconds); err != nil {
			e.logger.Error("failed to resume sync",
				zap.String("primary_instance_id", assoc.PrimaryInstanceID),
				zap.Error(err))
		}
	}
	e.scheduler.StartAsync()
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.scheduler.Stop()
	return nil
}

// StartSync registers a recurring mirror job for the pair.
func (e *Engine) StartSync(primaryID, standbyID string, intervalSeconds int) (Handle, error) {
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	handle := Handle(primaryID)

	e.mu.Lock()
	if _, exists := e.tasks[handle]; exists {
		e.mu.Unlock()
		return handle, fmt.Errorf("sync already running for primary %s", primaryID)
	}
	if e.tasks == nil {
		e.tasks = make(map[Handle]*task)
	}
	t := &task{primaryID: primaryID, standbyID: standbyID, state: model.SyncStateInitialSync}
	e.tasks[handle] = t
	e.mu.Unlock()

	// SingletonMode keeps a long transfer from overlapping the next tick
	_, err := e.scheduler.Every(intervalSeconds).Seconds().
		Tag(string(handle)).
		SingletonMode().
		Do(func() {
			e.runCycle(t)
		})
	if err != nil {
		e.mu.Lock()
		delete(e.tasks, handle)
		e.mu.Unlock()
		return "", err
	}
	return handle, nil
}

func (e *Engine) StopSync(handle Handle) error {
	e.mu.Lock()
	_, exists := e.tasks[handle]
	delete(e.tasks, handle)
	e.mu.Unlock()
	if !exists {
		return fmt.Errorf("no sync running for handle %s", handle)
	}
	return e.scheduler.RemoveByTag(string(handle))
}

// SyncStatus reports the engine's view of the pair's sync state.
func (e *Engine) SyncStatus(handle Handle) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[handle]; ok {
		return t.state
	}
	return ""
}

func (e *Engine) runCycle(t *task) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	e.notifier.Emit(notify.EventSyncStarted, map[string]string{
		"primary_instance_id": t.primaryID,
		"standby_instance_id": t.standbyID,
	})

	bytesCopied, filesCopied, err := e.MirrorOnce(ctx, t.primaryID, t.standbyID)
	if err != nil {
		// task fields are shared with SyncStatus, mutate them under the lock
		e.mu.Lock()
		t.consecutive++
		failures := t.consecutive
		markStale := t.consecutive >= e.maxFailures && t.state != model.SyncStateStale
		if markStale {
			t.state = model.SyncStateStale
		}
		e.mu.Unlock()

		e.logger.Warn("sync cycle failed",
			zap.String("primary_instance_id", t.primaryID),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		if markStale {
			if err := e.assocRepo.UpdateSyncState(ctx, t.primaryID, model.SyncStateStale); err != nil {
				e.logger.Error("failed to mark association stale",
					zap.String("primary_instance_id", t.primaryID), zap.Error(err))
			}
		}
		return
	}

	e.mu.Lock()
	t.consecutive = 0
	markReady := t.state != model.SyncStateReady
	if markReady {
		t.state = model.SyncStateReady
	}
	e.mu.Unlock()
	if markReady {
		if err := e.assocRepo.UpdateSyncState(ctx, t.primaryID, model.SyncStateReady); err != nil {
			e.logger.Error("failed to mark association ready",
				zap.String("primary_instance_id", t.primaryID), zap.Error(err))
		}
	}
	if err := e.assocRepo.RecordSyncProgress(ctx, t.primaryID, bytesCopied, time.Now()); err != nil {
		e.logger.Error("failed to record sync progress",
			zap.String("primary_instance_id", t.primaryID), zap.Error(err))
	}

	e.notifier.Emit(notify.EventSyncCompleted, map[string]interface{}{
		"primary_instance_id": t.primaryID,
		"standby_instance_id": t.standbyID,
		"bytes_synced":        bytesCopied,
		"files_synced":        filesCopied,
	})
}

// MirrorOnce copies every new or changed file from src to dst and reports how
// much it moved. Change detection is size+mtime; unchanged files cost one
// list entry, not a transfer. Also used by the orchestrator to seed a
// replacement GPU from the standby's live filesystem when no snapshot is
// usable.
func (e *Engine) MirrorOnce(ctx context.Context, srcID, dstID string) (int64, int64, error) {
	srcFiles, err := e.transport.ListFiles(ctx, srcID)
	if err != nil {
		return 0, 0, err
	}
	dstFiles, err := e.transport.ListFiles(ctx, dstID)
	if err != nil {
		return 0, 0, err
	}

	dstIndex := make(map[string]FileInfo, len(dstFiles))
	for _, f := range dstFiles {
		dstIndex[f.Path] = f
	}

	var bytesCopied, filesCopied int64
	for _, src := range srcFiles {
		if dst, ok := dstIndex[src.Path]; ok {
			if dst.Size == src.Size && dst.ModTime.Equal(src.ModTime) {
				continue
			}
		}
		if err := e.copyFile(ctx, srcID, dstID, src); err != nil {
			return bytesCopied, filesCopied, err
		}
		bytesCopied += src.Size
		filesCopied++
	}
	return bytesCopied, filesCopied, nil
}

func (e *Engine) copyFile(ctx context.Context, srcID, dstID string, info FileInfo) error {
	r, err := e.transport.ReadFile(ctx, srcID, info.Path)
	if err != nil {
		return err
	}
	defer r.Close()
	return e.transport.WriteFile(ctx, dstID, info.Path, info, r)
}
