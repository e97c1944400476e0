package orchestrator

import (
	"context"
	"errors"
	"time"

	"gpustandby/internal/model"
	"gpustandby/pkg/compute"

	"go.uber.org/zap"
)

// monitor sweeps active associations and checks each primary against its
// provider. An explicit INTERRUPTED state triggers a failover immediately;
// soft failures (API errors, unreachable agent) only raise a counter, and
// the resulting trigger still goes through the state machine's own
// confirmation probes.
type monitor struct {
	manager  *Manager
	interval time.Duration
	failures map[string]int
}

func newMonitor(manager *Manager, interval time.Duration) *monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &monitor{
		manager:  manager,
		interval: interval,
		failures: make(map[string]int),
	}
}

func (w *monitor) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *monitor) sweep(ctx context.Context) {
	assocs, err := w.manager.assocRepo.ListActive(ctx)
	if err != nil {
		w.manager.logger.Error("health sweep aborted", zap.Error(err))
		return
	}
	seen := make(map[string]struct{}, len(assocs))
	for _, assoc := range assocs {
		seen[assoc.PrimaryInstanceID] = struct{}{}
		if !assoc.AutoFailover {
			continue
		}
		if assoc.SyncState == model.SyncStateFailoverActive || w.manager.Running(assoc.PrimaryInstanceID) {
			continue
		}
		w.checkPrimary(ctx, assoc.PrimaryInstanceID)
	}
	// drop counters for dissociated primaries
	for id := range w.failures {
		if _, ok := seen[id]; !ok {
			delete(w.failures, id)
		}
	}
}

func (w *monitor) checkPrimary(ctx context.Context, primaryID string) {
	primary, err := w.manager.instanceRepo.GetByInstanceID(ctx, primaryID)
	if err != nil || primary == nil {
		return
	}
	provider, err := w.manager.providers.Get(compute.ProviderKind(primary.Provider))
	if err != nil {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, w.interval)
	inst, err := provider.GetInstance(checkCtx, primaryID)
	cancel()

	switch {
	case err == nil && inst.State == compute.StateInterrupted:
		w.trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	case errors.Is(err, compute.ErrInstanceNotFound):
		w.trigger(ctx, primaryID, model.ReasonProviderError, true)
	case err != nil:
		w.failures[primaryID]++
		if w.failures[primaryID] >= w.manager.opts.HealthFailures {
			w.trigger(ctx, primaryID, model.ReasonNetworkTimeout, false)
		}
	default:
		w.failures[primaryID] = 0
	}
}

func (w *monitor) trigger(ctx context.Context, primaryID, reason string, confirmed bool) {
	delete(w.failures, primaryID)
	if _, err := w.manager.Trigger(ctx, primaryID, reason, confirmed); err != nil &&
		!errors.Is(err, ErrFailoverInProgress) {
		w.manager.logger.Error("monitor trigger failed",
			zap.String("primary_instance_id", primaryID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}
