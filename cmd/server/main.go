package main

import (
	"context"
	"flag"
	"fmt"

	"gpustandby/cmd/server/wire"
	"gpustandby/pkg/config"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

// @title           GPU Standby API
// @version         1.0.0
// @description     Failover orchestration for spot GPU workloads: CPU standbys, workspace sync, snapshots and automatic replacement provisioning.
// @host      localhost:8000
// @securityDefinitions.apiKey Bearer
// @in header
// @name Authorization
func main() {
	var envConf = flag.String("conf", "config/local.yml", "config path, eg: -conf ./config/local.yml")
	flag.Parse()
	conf := config.NewConfig(*envConf)

	logger := log.NewLog(conf)

	app, cleanup, err := wire.NewWire(conf, logger)
	defer cleanup()
	if err != nil {
		panic(err)
	}
	logger.Info("server start", zap.String("host", fmt.Sprintf("http://%s:%d", conf.GetString("http.host"), conf.GetInt("http.port"))))
	logger.Info("docs addr", zap.String("addr", fmt.Sprintf("http://%s:%d/swagger/index.html", conf.GetString("http.host"), conf.GetInt("http.port"))))
	if err = app.Run(context.Background()); err != nil {
		panic(err)
	}
}
