package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Switcher redirects workload traffic between instances. Switching to the
// standby is the user-visible continuity point of a failover.
type Switcher interface {
	Switch(ctx context.Context, fromInstanceID, toInstanceID string) error
}

// NewSwitcher builds the configured switcher. Without a gateway endpoint the
// orchestrator still runs; switching just becomes a no-op.
func NewSwitcher(conf *viper.Viper, logger *log.Logger) Switcher {
	endpoint := conf.GetString("gateway.endpoint")
	if endpoint == "" {
		return NoopSwitcher{}
	}
	return NewGatewaySwitcher(endpoint, logger)
}

// GatewaySwitcher updates routes on the edge gateway fronting all instances.
type GatewaySwitcher struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

func NewGatewaySwitcher(endpoint string, logger *log.Logger) *GatewaySwitcher {
	return &GatewaySwitcher{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *GatewaySwitcher) Switch(ctx context.Context, fromInstanceID, toInstanceID string) error {
	start := time.Now()
	body, err := json.Marshal(map[string]string{
		"from_instance_id": fromInstanceID,
		"to_instance_id":   toInstanceID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/routes/switch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	s.logger.WithContext(ctx).Info("traffic switched",
		zap.String("from_instance_id", fromInstanceID),
		zap.String("to_instance_id", toInstanceID),
		zap.Duration("latency", time.Since(start)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway switch failed: status %d", resp.StatusCode)
	}
	return nil
}

// NoopSwitcher is used when no gateway is configured (tests, local runs).
type NoopSwitcher struct{}

func (NoopSwitcher) Switch(ctx context.Context, fromInstanceID, toInstanceID string) error {
	return nil
}
