package job

import (
	"context"
	"time"

	"gpustandby/internal/repository"
	"gpustandby/internal/snapshot"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SnapshotRetentionJob deletes snapshots older than the configured retention
// period, archive and row both. Storage for a fleet of workspaces grows fast;
// the newest snapshot per instance is always kept regardless of age.
type SnapshotRetentionJob struct {
	*Job
	snapshotRepo repository.SnapshotRepository
	engine       *snapshot.Engine
	retention    time.Duration
	logger       *log.Logger
}

func NewSnapshotRetentionJob(
	job *Job,
	conf *viper.Viper,
	snapshotRepo repository.SnapshotRepository,
	engine *snapshot.Engine,
	logger *log.Logger,
) *SnapshotRetentionJob {
	retention := conf.GetDuration("storage.retention")
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &SnapshotRetentionJob{
		Job:          job,
		snapshotRepo: snapshotRepo,
		engine:       engine,
		retention:    retention,
		logger:       logger,
	}
}

func (j *SnapshotRetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	expired, err := j.snapshotRepo.ListOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	var deleted int
	for _, snap := range expired {
		latest, err := j.snapshotRepo.GetLatestBySource(ctx, snap.SourceInstanceID)
		if err != nil {
			j.logger.Error("retention lookup error",
				zap.String("snapshot_id", snap.SnapshotID), zap.Error(err))
			continue
		}
		if latest != nil && latest.SnapshotID == snap.SnapshotID {
			continue
		}
		if err := j.engine.DeleteSnapshot(ctx, snap.SnapshotID); err != nil {
			j.logger.Error("retention delete error",
				zap.String("snapshot_id", snap.SnapshotID), zap.Error(err))
			continue
		}
		deleted++
	}
	j.logger.Info("snapshot retention pass finished",
		zap.Time("cutoff", cutoff),
		zap.Int("expired", len(expired)),
		zap.Int("deleted", deleted))
	return nil
}
