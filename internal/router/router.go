package router

import (
	"gpustandby/internal/handler"
	"gpustandby/pkg/jwt"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger          *log.Logger
	Config          *viper.Viper
	JWT             *jwt.JWT
	InstanceHandler *handler.InstanceHandler
	StandbyHandler  *handler.StandbyHandler
	FailoverHandler *handler.FailoverHandler
	SnapshotHandler *handler.SnapshotHandler
	WebhookHandler  *handler.WebhookHandler
	StreamHandler   *handler.StreamHandler
}
