package server

import (
	"context"
	"time"

	"gpustandby/internal/job"
	"gpustandby/pkg/log"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

type JobServer struct {
	log       *log.Logger
	scheduler *gocron.Scheduler

	retentionJob *job.SnapshotRetentionJob
}

func NewJobServer(
	log *log.Logger,
	retentionJob *job.SnapshotRetentionJob,
) *JobServer {
	return &JobServer{
		log:          log,
		scheduler:    gocron.NewScheduler(time.UTC),
		retentionJob: retentionJob,
	}
}

func (j *JobServer) Start(ctx context.Context) error {
	// snapshot retention runs hourly; each run deletes expired archives
	_, err := j.scheduler.Every(1).Hour().Do(func() {
		if err := j.retentionJob.Run(ctx); err != nil {
			j.log.Error("SnapshotRetentionJob error", zap.Error(err))
		}
	})
	if err != nil {
		j.log.Error("SnapshotRetentionJob scheduling error", zap.Error(err))
		return err
	}

	j.scheduler.StartBlocking()
	return nil
}

func (j *JobServer) Stop(ctx context.Context) error {
	j.scheduler.Stop()
	return nil
}
