package report

import (
	"context"
	"encoding/json"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/repository"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Recorder is the write side of the observability layer. Terminal failover
// events are buffered and written asynchronously with a bounded retry budget,
// so a briefly unavailable store never blocks the orchestrator's critical
// path. An event that exhausts its budget is logged in full locally before
// being dropped; it is never lost without a trace.
type Recorder struct {
	eventRepo  repository.FailoverEventRepository
	hub        *Hub
	logger     *log.Logger
	buffer     chan *model.FailoverEvent
	maxRetries int
	done       chan struct{}
}

func NewRecorder(
	conf *viper.Viper,
	eventRepo repository.FailoverEventRepository,
	hub *Hub,
	logger *log.Logger,
) *Recorder {
	size := conf.GetInt("report.buffer_size")
	if size == 0 {
		size = 256
	}
	maxRetries := conf.GetInt("report.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}
	r := &Recorder{
		eventRepo:  eventRepo,
		hub:        hub,
		logger:     logger,
		buffer:     make(chan *model.FailoverEvent, size),
		maxRetries: maxRetries,
		done:       make(chan struct{}),
	}
	go r.loop()
	return r
}

// RecordSync writes the event durably before returning. The state machine
// uses this between phases: a phase must not start before its predecessor's
// outcome is on disk.
func (r *Recorder) RecordSync(ctx context.Context, event *model.FailoverEvent) error {
	var err error
	existing, getErr := r.eventRepo.GetByEventID(ctx, event.EventID)
	if getErr != nil {
		return getErr
	}
	if existing == nil {
		err = r.eventRepo.Create(ctx, event)
	} else {
		err = r.eventRepo.Update(ctx, event)
	}
	if err != nil {
		return err
	}
	r.hub.Broadcast(event)
	return nil
}

// RecordAsync enqueues the event for background persistence. Never blocks: a
// full buffer drops the oldest pending write after logging it.
func (r *Recorder) RecordAsync(event *model.FailoverEvent) {
	r.hub.Broadcast(event)
	select {
	case r.buffer <- event:
	default:
		r.logDropped(event, "recorder buffer full")
	}
}

func (r *Recorder) Close() {
	close(r.buffer)
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for event := range r.buffer {
		r.persistWithRetry(event)
	}
}

func (r *Recorder) persistWithRetry(event *model.FailoverEvent) {
	delay := time.Second
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = r.RecordSync(ctx, event)
		cancel()
		if lastErr == nil {
			return
		}
	}
	r.logDropped(event, "retry budget exhausted")
	r.logger.Error("failover event dropped", zap.Error(lastErr))
}

func (r *Recorder) logDropped(event *model.FailoverEvent, why string) {
	raw, _ := json.Marshal(event)
	r.logger.Error("failover event not persisted",
		zap.String("why", why),
		zap.ByteString("event", raw))
}
