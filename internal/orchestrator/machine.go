package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/notify"
	"gpustandby/internal/repository"
	"gpustandby/internal/report"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

// Failure reasons written to failover_event.failure_reason.
const (
	FailureNotConfirmed      = "failure_not_confirmed"
	FailureNoStandby         = "no_standby_available"
	FailureStandbyNotSynced  = "standby_not_synced"
	FailureActivationFailed  = "activation_failed"
	FailureNoGpuAvailable    = "no_gpu_available"
	FailureProvisioning      = "provisioning_failed"
	FailureRestore           = "restore_failed"
	FailureVerification      = "verification_failed"
	FailureCancelled         = "cancelled"
)

// Options bound the state machine's timers. Zero values are filled with
// production defaults by OptionsFromConfig.
type Options struct {
	HealthFailures    int           // consecutive probe failures to confirm an unconfirmed trigger
	DetectInterval    time.Duration // spacing between confirmation probes
	SearchWindow      time.Duration // total budget for finding a replacement offer
	RelaxAfter        time.Duration // widen the offer filter after this much searching
	SearchInterval    time.Duration // spacing between marketplace polls
	ProvisionTimeout  time.Duration // budget for the replacement to reach RUNNING
	ProvisionInterval time.Duration // spacing between provisioning state polls
	VerifyRetries     int           // health probes of the replacement before giving up
	VerifyInterval    time.Duration // spacing between verification probes
	LeaseTTL          time.Duration // failover lease lifetime
}

func (o *Options) withDefaults() {
	if o.HealthFailures <= 0 {
		o.HealthFailures = 3
	}
	if o.DetectInterval <= 0 {
		o.DetectInterval = 5 * time.Second
	}
	if o.SearchWindow <= 0 {
		o.SearchWindow = 3 * time.Minute
	}
	if o.RelaxAfter <= 0 {
		o.RelaxAfter = time.Minute
	}
	if o.SearchInterval <= 0 {
		o.SearchInterval = 5 * time.Second
	}
	if o.ProvisionTimeout <= 0 {
		o.ProvisionTimeout = 5 * time.Minute
	}
	if o.ProvisionInterval <= 0 {
		o.ProvisionInterval = 3 * time.Second
	}
	if o.VerifyRetries <= 0 {
		o.VerifyRetries = 5
	}
	if o.VerifyInterval <= 0 {
		o.VerifyInterval = 3 * time.Second
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 15 * time.Minute
	}
}

// machine runs one failover from trigger to terminal state. It is created by
// the Manager under a per-primary lease, used once and discarded. Phase
// timings are checkpointed to the event store between phases; registry and
// provider side effects always happen before the phase that depends on them.
type machine struct {
	event     *model.FailoverEvent
	primary   *model.Instance
	confirmed bool

	opts         Options
	providers    *compute.Registry
	instanceRepo repository.InstanceRepository
	assocRepo    repository.StandbyAssociationRepository
	snapshotRepo repository.SnapshotRepository
	snapshots    *snapshot.Engine
	syncEngine   *syncer.Engine
	recorder     *report.Recorder
	notifier     *notify.Notifier
	switcher     Switcher
	probe        func(ctx context.Context, instanceID string) error
	retry        compute.RetryPolicy
	logger       *log.Logger

	assoc         *model.StandbyAssociation
	replacementID string
	timings       map[string]int64
}

func (m *machine) run(ctx context.Context) {
	m.timings = make(map[string]int64)
	m.logger.Info("failover started",
		zap.String("event_id", m.event.EventID),
		zap.String("primary_instance_id", m.primary.InstanceID),
		zap.String("reason", m.event.Reason))
	m.notifier.Emit(notify.EventFailoverStarted, map[string]string{
		"event_id":            m.event.EventID,
		"primary_instance_id": m.primary.InstanceID,
		"reason":              m.event.Reason,
	})

	if !m.phase(ctx, model.PhaseDetection, m.detect) {
		return
	}
	if !m.phase(ctx, model.PhaseFailoverActivation, m.activateStandby) {
		return
	}
	if !m.assoc.AutoRecovery {
		// the operator opted out of automatic replacement: the standby
		// stays the serving instance until a manual recovery
		m.finish(ctx, m.assoc.StandbyInstanceID, 0, 0)
		return
	}

	var chosen *compute.Offer
	if !m.phase(ctx, model.PhaseGpuSearch, func(ctx context.Context) (string, error) {
		offer, err := m.searchReplacement(ctx)
		if err != nil {
			return FailureNoGpuAvailable, err
		}
		chosen = offer
		return "", nil
	}) {
		return
	}
	if !m.phase(ctx, model.PhaseProvisioning, func(ctx context.Context) (string, error) {
		return FailureProvisioning, m.provision(ctx, chosen)
	}) {
		return
	}

	// the cutover in promote counts toward the restore timing
	var restored *snapshot.RestoreResult
	if !m.phase(ctx, model.PhaseRestore, func(ctx context.Context) (string, error) {
		result, reason, err := m.restoreAndVerify(ctx)
		if err != nil {
			return reason, err
		}
		restored = result
		if err := m.promote(ctx); err != nil {
			return FailureActivationFailed, err
		}
		return "", nil
	}) {
		return
	}
	m.finish(ctx, m.replacementID, restored.Bytes, restored.Files)
}

// phase times fn, records the duration under name and checkpoints the event.
// fn returns the failure reason to record when it errors. Returns false when
// the machine reached a terminal state.
func (m *machine) phase(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) bool {
	start := time.Now()
	reason, err := fn(ctx)
	m.timings[name] = time.Since(start).Milliseconds()
	if err != nil {
		m.fail(ctx, reason, err)
		return false
	}
	m.checkpoint(ctx)
	return true
}

// checkpoint persists the event with the timings so far. A store hiccup is
// logged, not fatal: the terminal write retries asynchronously regardless.
func (m *machine) checkpoint(ctx context.Context) {
	m.event.SetPhaseDurations(m.timings)
	if err := m.recorder.RecordSync(ctx, m.event); err != nil {
		m.logger.Warn("failover checkpoint not persisted",
			zap.String("event_id", m.event.EventID), zap.Error(err))
	}
}

// detect confirms the primary is actually gone. Explicit provider signals
// (preemption notices, operator triggers) are trusted as-is; soft signals
// need consecutive probe failures so a transient network blip does not burn
// a GPU lease.
func (m *machine) detect(ctx context.Context) (string, error) {
	if m.confirmed {
		return "", nil
	}
	provider, err := m.providers.Get(compute.ProviderKind(m.primary.Provider))
	if err != nil {
		return FailureNotConfirmed, err
	}
	failures := 0
	for failures < m.opts.HealthFailures {
		if err := ctx.Err(); err != nil {
			return FailureCancelled, err
		}
		inst, err := provider.GetInstance(ctx, m.primary.InstanceID)
		switch {
		case err == nil && inst.State == compute.StateRunning:
			if err := m.probe(ctx, m.primary.InstanceID); err == nil {
				return FailureNotConfirmed, errors.New("primary instance is healthy")
			}
			failures++
		case err == nil && inst.State == compute.StateInterrupted:
			return "", nil
		case errors.Is(err, compute.ErrInstanceNotFound):
			return "", nil
		default:
			failures++
		}
		if failures < m.opts.HealthFailures {
			select {
			case <-ctx.Done():
				return FailureCancelled, ctx.Err()
			case <-time.After(m.opts.DetectInterval):
			}
		}
	}
	return "", nil
}

// activateStandby points traffic at the CPU standby and freezes the sync
// pipeline. After this phase the user is degraded but running.
func (m *machine) activateStandby(ctx context.Context) (string, error) {
	assoc, err := m.assocRepo.GetAssociation(ctx, m.primary.InstanceID)
	if err != nil {
		if errors.Is(err, repository.ErrAssociationNotFound) {
			return FailureNoStandby, err
		}
		return FailureActivationFailed, err
	}
	if assoc.SyncState == model.SyncStateInitialSync {
		return FailureStandbyNotSynced, errors.New("standby has not completed its initial sync")
	}
	if assoc.SyncState == model.SyncStateStale {
		m.logger.Warn("activating stale standby, recent writes may be missing",
			zap.String("event_id", m.event.EventID),
			zap.String("standby_instance_id", assoc.StandbyInstanceID),
			zap.Time("last_sync_at", assoc.LastSyncAt))
	}
	m.assoc = assoc

	if err := m.syncEngine.StopSync(syncer.Handle(m.primary.InstanceID)); err != nil {
		m.logger.Warn("sync task not stopped", zap.String("event_id", m.event.EventID), zap.Error(err))
	}
	if err := m.assocRepo.UpdateSyncState(ctx, m.primary.InstanceID, model.SyncStateFailoverActive); err != nil {
		return FailureActivationFailed, err
	}
	if err := m.switcher.Switch(ctx, m.primary.InstanceID, assoc.StandbyInstanceID); err != nil {
		return FailureActivationFailed, err
	}
	if err := m.instanceRepo.UpdateState(ctx, m.primary.InstanceID, model.InstanceStateInterrupted); err != nil {
		m.logger.Warn("primary state not updated", zap.String("event_id", m.event.EventID), zap.Error(err))
	}
	return "", nil
}

// searchReplacement polls the spot marketplace for an offer matching the lost
// GPU. The filter starts strict (same GPU model) and relaxes to any card with
// enough VRAM once RelaxAfter has passed. Exhausting the window is a FAILED
// outcome; the standby keeps serving.
func (m *machine) searchReplacement(ctx context.Context) (*compute.Offer, error) {
	provider, err := m.providers.Get(compute.ProviderSpotGPU)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(m.opts.SearchWindow)
	relaxAt := time.Now().Add(m.opts.RelaxAfter)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		relaxed := time.Now().After(relaxAt)
		filter := &compute.OfferFilter{
			MinVRAMGb: m.primary.VRAMGb,
			Region:    m.primary.Region,
		}
		if !relaxed {
			filter.GpuType = m.primary.GpuType
		}

		var offers []*compute.Offer
		err := m.retry.Do(ctx, func(ctx context.Context) error {
			var listErr error
			offers, listErr = provider.ListOffers(ctx, filter)
			return listErr
		})
		if err != nil {
			m.logger.Warn("offer listing failed",
				zap.String("event_id", m.event.EventID), zap.Error(err))
		}
		if offer := pickOffer(offers, m.primary.GpuType, m.primary.VRAMGb); offer != nil {
			m.logger.Info("replacement offer selected",
				zap.String("event_id", m.event.EventID),
				zap.String("offer_id", offer.ID),
				zap.String("gpu_type", offer.GpuType),
				zap.Float64("hourly_cost", offer.HourlyCost))
			return offer, nil
		}

		if time.Now().After(deadline) {
			return nil, errors.New("no matching gpu offer within the search window")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.opts.SearchInterval):
		}
	}
}

// pickOffer ranks candidates: exact GPU model first, then more VRAM, then
// cheaper. Offers below the VRAM floor are discarded outright.
func pickOffer(offers []*compute.Offer, gpuType string, minVRAM int) *compute.Offer {
	eligible := make([]*compute.Offer, 0, len(offers))
	for _, o := range offers {
		if o.VRAMGb >= minVRAM {
			eligible = append(eligible, o)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		ei, ej := eligible[i].GpuType == gpuType, eligible[j].GpuType == gpuType
		if ei != ej {
			return ei
		}
		if eligible[i].VRAMGb != eligible[j].VRAMGb {
			return eligible[i].VRAMGb > eligible[j].VRAMGb
		}
		return eligible[i].HourlyCost < eligible[j].HourlyCost
	})
	return eligible[0]
}

// provision leases the chosen offer and waits for it to reach RUNNING. The
// event id doubles as the idempotency token so a retried create cannot leak
// a second instance.
func (m *machine) provision(ctx context.Context, offer *compute.Offer) error {
	provider, err := m.providers.Get(compute.ProviderSpotGPU)
	if err != nil {
		return err
	}
	spec := &compute.InstanceSpec{
		RequestToken: m.event.EventID,
		GpuType:      offer.GpuType,
		GpuCount:     offer.GpuCount,
		VRAMGb:       offer.VRAMGb,
		Region:       offer.Region,
		MaxHourly:    offer.HourlyCost,
	}
	var created *compute.Instance
	err = m.retry.Do(ctx, func(ctx context.Context) error {
		var createErr error
		created, createErr = provider.CreateInstance(ctx, spec)
		return createErr
	})
	if err != nil {
		return err
	}
	m.replacementID = created.ID
	m.event.NewInstanceID = created.ID

	deadline := time.Now().Add(m.opts.ProvisionTimeout)
	for {
		inst, err := provider.GetInstance(ctx, created.ID)
		if err == nil {
			switch inst.State {
			case compute.StateRunning:
				return m.instanceRepo.Upsert(ctx, &model.Instance{
					InstanceID:   inst.ID,
					Provider:     string(compute.ProviderReplacementGPU),
					GpuType:      inst.GpuType,
					GpuCount:     offer.GpuCount,
					VRAMGb:       offer.VRAMGb,
					State:        model.InstanceStateRunning,
					IPAddress:    inst.IPAddress,
					Region:       inst.Region,
					HourlyCost:   inst.HourlyCost,
					WorkspaceDir: m.snapshots.WorkspacePath(inst.ID),
				})
			case compute.StateDestroyed, compute.StateInterrupted:
				return errors.New("replacement instance lost during provisioning")
			}
		}
		if time.Now().After(deadline) {
			m.teardownReplacement()
			return errors.New("replacement did not become ready in time")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.ProvisionInterval):
		}
	}
}

// restoreAndVerify rebuilds the workspace on the replacement and proves the
// instance answers health probes. The latest snapshot is preferred; a corrupt
// or missing snapshot falls back to mirroring the standby's live filesystem,
// which is at most one sync interval behind.
func (m *machine) restoreAndVerify(ctx context.Context) (*snapshot.RestoreResult, string, error) {
	result, err := m.restoreData(ctx)
	if err != nil {
		return nil, FailureRestore, err
	}
	var probeErr error
	for attempt := 0; attempt < m.opts.VerifyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, FailureCancelled, ctx.Err()
			case <-time.After(m.opts.VerifyInterval):
			}
		}
		if probeErr = m.probe(ctx, m.replacementID); probeErr == nil {
			return result, "", nil
		}
	}
	m.teardownReplacement()
	return nil, FailureVerification, probeErr
}

func (m *machine) restoreData(ctx context.Context) (*snapshot.RestoreResult, error) {
	snap, err := m.snapshotRepo.GetLatestBySource(ctx, m.primary.InstanceID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		result, err := m.snapshots.RestoreSnapshot(ctx, snap.SnapshotID, m.replacementID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, snapshot.ErrCorruptSnapshot) {
			return nil, err
		}
		m.logger.Warn("latest snapshot corrupt, falling back to standby filesystem",
			zap.String("event_id", m.event.EventID),
			zap.String("snapshot_id", snap.SnapshotID))
	}
	bytes, files, err := m.syncEngine.MirrorOnce(ctx, m.assoc.StandbyInstanceID, m.replacementID)
	if err != nil {
		return nil, err
	}
	return &snapshot.RestoreResult{Bytes: bytes, Files: files}, nil
}

// promote makes the replacement the new primary: traffic moves off the
// standby, the registry is repointed, and the sync pipeline restarts in the
// new direction.
func (m *machine) promote(ctx context.Context) error {
	if err := m.switcher.Switch(ctx, m.assoc.StandbyInstanceID, m.replacementID); err != nil {
		return err
	}
	if err := m.assocRepo.ReplacePrimary(ctx, m.primary.InstanceID, m.replacementID); err != nil {
		// the standby is still consistent, put traffic back on it
		if switchErr := m.switcher.Switch(ctx, m.replacementID, m.assoc.StandbyInstanceID); switchErr != nil {
			m.logger.Error("traffic not returned to standby",
				zap.String("event_id", m.event.EventID), zap.Error(switchErr))
		}
		return err
	}
	if _, err := m.syncEngine.StartSync(m.replacementID, m.assoc.StandbyInstanceID, m.assoc.SyncIntervalSeconds); err != nil {
		m.logger.Error("sync not restarted after failover",
			zap.String("event_id", m.event.EventID),
			zap.String("new_primary_instance_id", m.replacementID),
			zap.Error(err))
	}
	return nil
}

// finish records the terminal SUCCESS state. TotalTimeMs is the sum of the
// recorded phase durations.
func (m *machine) finish(ctx context.Context, newInstanceID string, restoredBytes, filesSynced int64) {
	m.event.Status = model.FailoverStatusSuccess
	m.event.NewInstanceID = newInstanceID
	m.event.DataRestoredBytes = restoredBytes
	m.event.FilesSyncedCount = filesSynced
	m.event.FinishedAt = time.Now()
	m.event.TotalTimeMs = phaseSum(m.timings)
	m.event.SetPhaseDurations(m.timings)
	m.persistTerminal(ctx)

	m.logger.Info("failover completed",
		zap.String("event_id", m.event.EventID),
		zap.String("primary_instance_id", m.primary.InstanceID),
		zap.String("new_instance_id", newInstanceID),
		zap.Int64("total_time_ms", m.event.TotalTimeMs))
	m.notifier.Emit(notify.EventFailoverCompleted, map[string]interface{}{
		"event_id":            m.event.EventID,
		"primary_instance_id": m.primary.InstanceID,
		"new_instance_id":     newInstanceID,
		"total_time_ms":       m.event.TotalTimeMs,
	})
}

// fail records the terminal FAILED state with whatever phase timings exist.
// A cancelled context always wins as the recorded reason.
func (m *machine) fail(ctx context.Context, reason string, cause error) {
	if ctx.Err() != nil && reason != FailureCancelled {
		reason = FailureCancelled
	}
	m.teardownReplacement()
	m.event.Status = model.FailoverStatusFailed
	m.event.FailureReason = reason
	m.event.FinishedAt = time.Now()
	m.event.TotalTimeMs = phaseSum(m.timings)
	m.event.SetPhaseDurations(m.timings)
	m.persistTerminal(context.WithoutCancel(ctx))

	m.logger.Error("failover failed",
		zap.String("event_id", m.event.EventID),
		zap.String("primary_instance_id", m.primary.InstanceID),
		zap.String("failure_reason", reason),
		zap.Error(cause))
	m.notifier.Emit(notify.EventFailoverFailed, map[string]string{
		"event_id":            m.event.EventID,
		"primary_instance_id": m.primary.InstanceID,
		"failure_reason":      reason,
	})
}

func phaseSum(timings map[string]int64) int64 {
	var total int64
	for _, ms := range timings {
		total += ms
	}
	return total
}

// persistTerminal writes the terminal event durably, falling back to the
// async retry queue when the store is unavailable right now.
func (m *machine) persistTerminal(ctx context.Context) {
	if err := m.recorder.RecordSync(ctx, m.event); err != nil {
		m.logger.Warn("terminal event write deferred",
			zap.String("event_id", m.event.EventID), zap.Error(err))
		m.recorder.RecordAsync(m.event)
	}
}

// teardownReplacement destroys a half-provisioned replacement so an aborted
// failover does not leak a billed GPU. Best effort.
func (m *machine) teardownReplacement() {
	if m.replacementID == "" {
		return
	}
	provider, err := m.providers.Get(compute.ProviderSpotGPU)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := provider.DestroyInstance(ctx, m.replacementID); err != nil {
		m.logger.Error("replacement instance not destroyed",
			zap.String("event_id", m.event.EventID),
			zap.String("instance_id", m.replacementID),
			zap.Error(err))
	}
	m.replacementID = ""
	m.event.NewInstanceID = ""
}
