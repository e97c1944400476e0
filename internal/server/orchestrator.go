package server

import (
	"context"

	"gpustandby/internal/orchestrator"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/log"
)

// OrchestratorServer runs the failover manager and the sync engine as one
// daemon process.
type OrchestratorServer struct {
	log        *log.Logger
	manager    *orchestrator.Manager
	syncEngine *syncer.Engine
}

func NewOrchestratorServer(
	log *log.Logger,
	manager *orchestrator.Manager,
	syncEngine *syncer.Engine,
) *OrchestratorServer {
	return &OrchestratorServer{
		log:        log,
		manager:    manager,
		syncEngine: syncEngine,
	}
}

func (s *OrchestratorServer) Start(ctx context.Context) error {
	if err := s.syncEngine.Start(ctx); err != nil {
		return err
	}
	if err := s.manager.Start(ctx); err != nil {
		return err
	}
	s.log.Info("orchestrator started")
	<-ctx.Done()
	return nil
}

func (s *OrchestratorServer) Stop(ctx context.Context) error {
	if err := s.manager.Stop(ctx); err != nil {
		s.log.Error("manager stop error")
	}
	return s.syncEngine.Stop(ctx)
}
