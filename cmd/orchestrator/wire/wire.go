//go:build wireinject
// +build wireinject

package wire

import (
	"gpustandby/internal/notify"
	"gpustandby/internal/orchestrator"
	"gpustandby/internal/provider"
	"gpustandby/internal/report"
	"gpustandby/internal/repository"
	"gpustandby/internal/server"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/app"
	"gpustandby/pkg/log"
	"gpustandby/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRedis,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewInstanceRepository,
	repository.NewStandbyAssociationRepository,
	repository.NewFailoverEventRepository,
	repository.NewSnapshotRepository,
)

var engineSet = wire.NewSet(
	provider.NewRegistry,
	snapshot.NewObjectStore,
	snapshot.NewEngine,
	syncer.NewTransport,
	syncer.NewEngine,
	notify.NewNotifier,
	report.NewHub,
	report.NewRecorder,
	orchestrator.NewSwitcher,
	orchestrator.NewLease,
	orchestrator.NewManager,
)

var serverSet = wire.NewSet(
	server.NewOrchestratorServer,
)

func newApp(
	orchestratorServer *server.OrchestratorServer,
) *app.App {
	return app.NewApp(
		app.WithServer(orchestratorServer),
		app.WithName("gpustandby-orchestrator"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		engineSet,
		serverSet,
		sid.NewSid,
		newApp,
	))
}
