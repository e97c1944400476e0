package provider

import (
	"gpustandby/pkg/compute"
	"gpustandby/pkg/compute/gce"
	"gpustandby/pkg/compute/vast"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
)

// NewRegistry assembles the provider registry from configuration. The spot
// marketplace serves both the primary GPU fleet and replacement searches; the
// on-demand cloud serves CPU standbys.
func NewRegistry(conf *viper.Viper, logger *log.Logger) (*compute.Registry, error) {
	registry := compute.NewRegistry()

	spot, err := vast.NewClient(
		conf.GetString("providers.spot.api_url"),
		conf.GetString("providers.spot.api_key"),
		logger,
	)
	if err != nil {
		return nil, err
	}
	registry.Register(compute.ProviderSpotGPU, spot)
	registry.Register(compute.ProviderReplacementGPU, spot)

	standby, err := gce.NewClient(
		conf.GetString("providers.standby.api_url"),
		conf.GetString("providers.standby.project"),
		conf.GetString("providers.standby.token"),
		logger,
	)
	if err != nil {
		return nil, err
	}
	registry.Register(compute.ProviderCPUStandby, standby)

	return registry, nil
}
