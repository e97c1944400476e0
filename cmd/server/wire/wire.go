//go:build wireinject
// +build wireinject

package wire

import (
	"gpustandby/internal/handler"
	"gpustandby/internal/job"
	"gpustandby/internal/notify"
	"gpustandby/internal/orchestrator"
	"gpustandby/internal/provider"
	"gpustandby/internal/report"
	"gpustandby/internal/repository"
	"gpustandby/internal/router"
	"gpustandby/internal/server"
	"gpustandby/internal/service"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/app"
	"gpustandby/pkg/jwt"
	"gpustandby/pkg/log"
	"gpustandby/pkg/server/http"
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

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewInstanceService,
	service.NewStandbyService,
	service.NewFailoverService,
	service.NewSnapshotService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewInstanceHandler,
	handler.NewStandbyHandler,
	handler.NewFailoverHandler,
	handler.NewSnapshotHandler,
	handler.NewWebhookHandler,
	handler.NewStreamHandler,
)

var jobSet = wire.NewSet(
	job.NewJob,
	job.NewSnapshotRetentionJob,
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewJobServer,
)

// build App
func newApp(
	httpServer *http.Server,
	jobServer *server.JobServer,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, jobServer),
		app.WithName("gpustandby-server"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		engineSet,
		serviceSet,
		handlerSet,
		jobSet,
		serverSet,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
