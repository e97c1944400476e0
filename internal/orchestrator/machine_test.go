package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/notify"
	"gpustandby/internal/report"
	"gpustandby/internal/repository"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/compute/fake"
	"gpustandby/pkg/log"
	"gpustandby/pkg/sid"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	manager   *Manager
	spot      *fake.Provider
	cpu       *fake.Provider
	transport *syncer.MemoryTransport
	store     *snapshot.MemoryStore
	snapshots *snapshot.Engine
	instRepo  repository.InstanceRepository
	assocRepo repository.StandbyAssociationRepository
	eventRepo repository.FailoverEventRepository
	snapRepo  repository.SnapshotRepository
	conf      *viper.Viper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conf := viper.New()
	conf.Set("data.db.user.driver", "sqlite")
	conf.Set("data.db.user.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	conf.Set("storage.workspace_root", t.TempDir())
	conf.Set("storage.compression", model.CompressionLZ4)
	conf.Set("orchestrator.health_interval", "1h")
	conf.Set("orchestrator.health_failures", 2)
	conf.Set("orchestrator.detect_interval", "20ms")
	conf.Set("orchestrator.search_window", "500ms")
	conf.Set("orchestrator.relax_after", "100ms")
	conf.Set("orchestrator.search_interval", "20ms")
	conf.Set("orchestrator.provision_timeout", "2s")
	conf.Set("orchestrator.provision_interval", "10ms")
	conf.Set("orchestrator.verify_retries", 2)
	conf.Set("orchestrator.verify_interval", "10ms")
	conf.Set("orchestrator.lease_ttl", "1m")
	logger := log.NewLog(conf)

	db := repository.NewDB(conf, logger)
	require.NoError(t, db.AutoMigrate(
		&model.Instance{},
		&model.StandbyAssociation{},
		&model.FailoverEvent{},
		&model.Snapshot{},
	))
	repo := repository.NewRepository(logger, db)
	tm := repository.NewTransaction(repo)
	instRepo := repository.NewInstanceRepository(repo)
	assocRepo := repository.NewStandbyAssociationRepository(repo, tm)
	eventRepo := repository.NewFailoverEventRepository(repo)
	snapRepo := repository.NewSnapshotRepository(repo)

	s := sid.NewSid()
	store := snapshot.NewMemoryStore()
	snapEngine := snapshot.NewEngine(conf, store, snapRepo, s, logger)
	transport := syncer.NewMemoryTransport()
	notifier := notify.NewNotifier(conf, logger)
	syncEngine := syncer.NewEngine(conf, assocRepo, transport, notifier, logger)
	hub := report.NewHub()
	recorder := report.NewRecorder(conf, eventRepo, hub, logger)

	registry := compute.NewRegistry()
	spot := fake.NewProvider("spot", compute.ProviderSpotGPU)
	cpu := fake.NewProvider("cpu", compute.ProviderCPUStandby)
	registry.Register(compute.ProviderSpotGPU, spot)
	registry.Register(compute.ProviderCPUStandby, cpu)

	manager := NewManager(conf, registry, instRepo, assocRepo, snapRepo, snapEngine,
		syncEngine, recorder, notifier, NoopSwitcher{}, NewMemoryLease(), transport, s, logger)

	return &testEnv{
		manager:   manager,
		spot:      spot,
		cpu:       cpu,
		transport: transport,
		store:     store,
		snapshots: snapEngine,
		instRepo:  instRepo,
		assocRepo: assocRepo,
		eventRepo: eventRepo,
		snapRepo:  snapRepo,
		conf:      conf,
	}
}

func (e *testEnv) seedPair(t *testing.T, cfg *repository.AssociateConfig, syncState string) (string, string) {
	t.Helper()
	ctx := context.Background()

	e.spot.Seed(&compute.Instance{
		ID: "gpu-1", Provider: compute.ProviderSpotGPU, GpuType: "RTX4090",
		State: compute.StateRunning, IPAddress: "10.0.0.1", Region: "us-east",
	})
	require.NoError(t, e.instRepo.Upsert(ctx, &model.Instance{
		InstanceID: "gpu-1", Provider: string(compute.ProviderSpotGPU),
		GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24,
		State: model.InstanceStateRunning, IPAddress: "10.0.0.1", Region: "us-east",
	}))
	require.NoError(t, e.instRepo.Upsert(ctx, &model.Instance{
		InstanceID: "cpu-1", Provider: string(compute.ProviderCPUStandby),
		State: model.InstanceStateRunning, IPAddress: "10.0.1.1",
	}))

	if cfg == nil {
		cfg = &repository.AssociateConfig{SyncIntervalSeconds: 30, AutoFailover: true, AutoRecovery: true}
	}
	_, err := e.assocRepo.Associate(ctx, "gpu-1", "cpu-1", cfg)
	require.NoError(t, err)
	if syncState != "" && syncState != model.SyncStateInitialSync {
		require.NoError(t, e.assocRepo.UpdateSyncState(ctx, "gpu-1", syncState))
	}

	e.transport.PutFile("cpu-1", syncer.FileInfo{Path: "model.ckpt", ModTime: time.Now()}, []byte("checkpoint-weights"))
	e.transport.PutFile("cpu-1", syncer.FileInfo{Path: "train.log", ModTime: time.Now()}, []byte("step 4200"))
	return "gpu-1", "cpu-1"
}

func (e *testEnv) waitTerminal(t *testing.T, eventID string) *model.FailoverEvent {
	t.Helper()
	var event *model.FailoverEvent
	require.Eventually(t, func() bool {
		got, err := e.eventRepo.GetByEventID(context.Background(), eventID)
		if err != nil || got == nil || !got.Terminal() {
			return false
		}
		event = got
		return true
	}, 5*time.Second, 20*time.Millisecond)
	return event
}

func TestFailoverReplacesPrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, standbyID := env.seedPair(t, nil, model.SyncStateReady)

	env.spot.SetOffers([]*compute.Offer{
		{ID: "offer-cheap", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.42},
		{ID: "offer-pricey", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.80},
	})
	env.spot.Interrupt(primaryID)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusSuccess, event.Status)
	assert.NotEmpty(t, event.NewInstanceID)
	assert.NotEqual(t, standbyID, event.NewInstanceID)
	assert.False(t, event.FinishedAt.IsZero())
	assert.Positive(t, event.DataRestoredBytes)

	phases := event.PhaseDurations()
	for _, name := range []string{
		model.PhaseDetection, model.PhaseFailoverActivation,
		model.PhaseGpuSearch, model.PhaseProvisioning, model.PhaseRestore,
	} {
		_, ok := phases[name]
		assert.True(t, ok, "missing phase %s", name)
	}

	// the association is repointed at the replacement and resyncing
	assoc, err := env.assocRepo.GetAssociation(ctx, event.NewInstanceID)
	require.NoError(t, err)
	assert.Equal(t, standbyID, assoc.StandbyInstanceID)
	assert.Equal(t, model.SyncStateInitialSync, assoc.SyncState)

	// replacement workspace was seeded from the standby's live filesystem
	data, ok := env.transport.FileData(event.NewInstanceID, "model.ckpt")
	require.True(t, ok)
	assert.Equal(t, []byte("checkpoint-weights"), data)

	// cheapest matching offer won
	inst, err := env.spot.GetInstance(ctx, event.NewInstanceID)
	require.NoError(t, err)
	assert.Equal(t, "RTX4090", inst.GpuType)
}

type slowSwitcher struct {
	delay time.Duration
}

func (s slowSwitcher) Switch(ctx context.Context, fromInstanceID, toInstanceID string) error {
	time.Sleep(s.delay)
	return nil
}

func TestTotalTimeMatchesPhaseBreakdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.manager.switcher = slowSwitcher{delay: 150 * time.Millisecond}
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)

	env.spot.SetOffers([]*compute.Offer{
		{ID: "offer-1", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.5},
	})
	env.spot.Interrupt(primaryID)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	require.Equal(t, model.FailoverStatusSuccess, event.Status)

	phases := event.PhaseDurations()
	var sum int64
	for _, ms := range phases {
		sum += ms
	}
	assert.Equal(t, sum, event.TotalTimeMs)

	// both slow cutovers land in a phase: activation switches to the
	// standby, the promote cutover is folded into restore
	assert.GreaterOrEqual(t, phases[model.PhaseFailoverActivation], int64(150))
	assert.GreaterOrEqual(t, phases[model.PhaseRestore], int64(150))
	assert.GreaterOrEqual(t, event.TotalTimeMs, int64(300))
}

func TestFailoverPrefersSnapshotRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)

	workspace := filepath.Join(env.conf.GetString("storage.workspace_root"), primaryID)
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "weights.bin"), []byte("snapshot-weights"), 0o644))
	snap, err := env.snapshots.CreateSnapshot(ctx, primaryID, workspace)
	require.NoError(t, err)

	env.spot.SetOffers([]*compute.Offer{
		{ID: "offer-1", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.5},
	})
	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	require.Equal(t, model.FailoverStatusSuccess, event.Status)
	assert.Equal(t, int64(len("snapshot-weights")), event.DataRestoredBytes)
	assert.Positive(t, snap.SizeBytes)

	restored, err := os.ReadFile(filepath.Join(env.conf.GetString("storage.workspace_root"), event.NewInstanceID, "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot-weights"), restored)
}

func TestFailoverCorruptSnapshotFallsBackToStandby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)

	workspace := filepath.Join(env.conf.GetString("storage.workspace_root"), primaryID)
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "weights.bin"), []byte("snapshot-weights"), 0o644))
	snap, err := env.snapshots.CreateSnapshot(ctx, primaryID, workspace)
	require.NoError(t, err)
	env.store.Tamper(snap.StorageURI, []byte("bit rot"))

	env.spot.SetOffers([]*compute.Offer{
		{ID: "offer-1", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.5},
	})
	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	require.Equal(t, model.FailoverStatusSuccess, event.Status)

	// the corrupt archive was bypassed in favor of the standby's files
	data, ok := env.transport.FileData(event.NewInstanceID, "model.ckpt")
	require.True(t, ok)
	assert.Equal(t, []byte("checkpoint-weights"), data)
}

func TestFailoverNoOfferKeepsStandbyServing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, standbyID := env.seedPair(t, nil, model.SyncStateReady)
	env.spot.SetOffers(nil)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusFailed, event.Status)
	assert.Equal(t, FailureNoGpuAvailable, event.FailureReason)

	// degraded but alive: the pair still points at the standby
	assoc, err := env.assocRepo.GetAssociation(ctx, primaryID)
	require.NoError(t, err)
	assert.Equal(t, standbyID, assoc.StandbyInstanceID)
	assert.Equal(t, model.SyncStateFailoverActive, assoc.SyncState)
}

func TestFailoverWithoutAutoRecoveryStopsAtStandby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := &repository.AssociateConfig{SyncIntervalSeconds: 30, AutoFailover: true, AutoRecovery: false}
	primaryID, standbyID := env.seedPair(t, cfg, model.SyncStateReady)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonHostMaintenance, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusSuccess, event.Status)
	assert.Equal(t, standbyID, event.NewInstanceID)

	phases := event.PhaseDurations()
	_, searched := phases[model.PhaseGpuSearch]
	assert.False(t, searched, "no replacement search when auto recovery is off")
}

func TestFailoverRequiresSyncedStandby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, _ := env.seedPair(t, nil, model.SyncStateInitialSync)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusFailed, event.Status)
	assert.Equal(t, FailureStandbyNotSynced, event.FailureReason)
}

func TestDuplicateTriggerAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.manager.opts.SearchWindow = 30 * time.Second
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)
	env.spot.SetOffers(nil) // keeps the machine parked in the search phase

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.manager.Running(primaryID) }, 2*time.Second, 10*time.Millisecond)

	_, err = env.manager.Trigger(ctx, primaryID, model.ReasonSpotPreemption, true)
	assert.ErrorIs(t, err, ErrFailoverInProgress)

	require.NoError(t, env.manager.Cancel(primaryID))
	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusFailed, event.Status)
	assert.Equal(t, FailureCancelled, event.FailureReason)

	require.Eventually(t, func() bool { return !env.manager.Running(primaryID) }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, env.manager.Cancel(primaryID), ErrNoFailoverRunning)
}

func TestUnconfirmedTriggerAbortsOnHealthyPrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)

	eventID, err := env.manager.Trigger(ctx, primaryID, model.ReasonNetworkTimeout, false)
	require.NoError(t, err)

	event := env.waitTerminal(t, eventID)
	assert.Equal(t, model.FailoverStatusFailed, event.Status)
	assert.Equal(t, FailureNotConfirmed, event.FailureReason)
}

func TestMonitorTriggersOnInterruption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primaryID, _ := env.seedPair(t, nil, model.SyncStateReady)
	env.spot.SetOffers([]*compute.Offer{
		{ID: "offer-1", GpuType: "RTX4090", GpuCount: 1, VRAMGb: 24, Region: "us-east", HourlyCost: 0.5},
	})
	env.spot.Interrupt(primaryID)

	env.manager.monitor.sweep(ctx)

	var event *model.FailoverEvent
	require.Eventually(t, func() bool {
		got, err := env.eventRepo.GetInProgress(ctx, primaryID)
		if err != nil {
			return false
		}
		if got != nil {
			event = got
			return true
		}
		// may already be terminal
		events, _, err := env.eventRepo.QueryHistory(ctx, &repository.HistoryFilter{PrimaryInstanceID: primaryID})
		if err != nil || len(events) == 0 {
			return false
		}
		event = events[0]
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.ReasonSpotPreemption, event.Reason)
}

func TestPickOfferRanking(t *testing.T) {
	offers := []*compute.Offer{
		{ID: "small", GpuType: "RTX3090", VRAMGb: 16, HourlyCost: 0.10},
		{ID: "other-big", GpuType: "A100", VRAMGb: 40, HourlyCost: 0.90},
		{ID: "exact-pricey", GpuType: "RTX4090", VRAMGb: 24, HourlyCost: 0.60},
		{ID: "exact-cheap", GpuType: "RTX4090", VRAMGb: 24, HourlyCost: 0.40},
	}

	picked := pickOffer(offers, "RTX4090", 24)
	require.NotNil(t, picked)
	assert.Equal(t, "exact-cheap", picked.ID)

	// without an exact model match, more VRAM wins
	picked = pickOffer(offers[:2], "RTX4090", 16)
	require.NotNil(t, picked)
	assert.Equal(t, "other-big", picked.ID)

	assert.Nil(t, pickOffer(offers, "RTX4090", 80))
}
