package notify

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

// Webhook event names consumed by external notification/billing systems.
const (
	EventFailoverStarted   = "failover.started"
	EventFailoverCompleted = "failover.completed"
	EventFailoverFailed    = "failover.failed"
	EventSyncStarted       = "standby.sync_started"
	EventSyncCompleted     = "standby.sync_completed"
)

// Notifier delivers webhook events to the configured endpoints. Delivery is
// asynchronous and best-effort: the orchestrator's critical path never waits
// on a webhook, and a delivery that exhausts its retry budget is logged and
// dropped.
type Notifier struct {
	endpoints  []string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger
}

func NewNotifier(conf *viper.Viper, logger *log.Logger) *Notifier {
	timeout := conf.GetDuration("notify.timeout")
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := conf.GetInt("notify.max_retries")
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &Notifier{
		endpoints:  conf.GetStringSlice("notify.endpoints"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

type envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Emit queues the event for delivery to every endpoint and returns
// immediately.
func (n *Notifier) Emit(event string, payload interface{}) {
	if len(n.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(envelope{Event: event, Timestamp: time.Now(), Data: payload})
	if err != nil {
		n.logger.Error("notify marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, endpoint := range n.endpoints {
		go n.deliver(endpoint, event, body)
	}
}

func (n *Notifier) deliver(endpoint, event string, body []byte) {
	delay := time.Second
	var lastErr error
	for attempt := 0; attempt < n.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		lastErr = n.post(endpoint, body)
		if lastErr == nil {
			return
		}
	}
	n.logger.Error("webhook delivery dropped after retries",
		zap.String("endpoint", endpoint),
		zap.String("event", event),
		zap.Error(lastErr))
}

func (n *Notifier) post(endpoint string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
