package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"gpustandby/internal/model"
	"gpustandby/internal/notify"
	"gpustandby/internal/repository"
	"gpustandby/internal/report"
	"gpustandby/internal/snapshot"
	"gpustandby/internal/syncer"
	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"
	"gpustandby/pkg/sid"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// ErrFailoverInProgress: a failover for this primary is already running.
	// The duplicate trigger is dropped, not queued.
	ErrFailoverInProgress = errors.New("orchestrator: failover already in progress")
	// ErrNoFailoverRunning is returned by Cancel when there is nothing to cancel.
	ErrNoFailoverRunning = errors.New("orchestrator: no failover in progress")
)

// Manager owns the failover lifecycle for the whole fleet: it watches primary
// health, accepts pushed interruption signals and manual triggers, and runs at
// most one state machine per primary at a time. Cross-process exclusion comes
// from the lease; the in-process map exists so Cancel can reach the running
// machine.
type Manager struct {
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
	lease        Lease
	transport    syncer.Transport
	sid          *sid.Sid
	logger       *log.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	monitor *monitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func OptionsFromConfig(conf *viper.Viper) Options {
	opts := Options{
		HealthFailures:    conf.GetInt("orchestrator.health_failures"),
		DetectInterval:    conf.GetDuration("orchestrator.detect_interval"),
		SearchWindow:      conf.GetDuration("orchestrator.search_window"),
		RelaxAfter:        conf.GetDuration("orchestrator.relax_after"),
		SearchInterval:    conf.GetDuration("orchestrator.search_interval"),
		ProvisionTimeout:  conf.GetDuration("orchestrator.provision_timeout"),
		ProvisionInterval: conf.GetDuration("orchestrator.provision_interval"),
		VerifyRetries:     conf.GetInt("orchestrator.verify_retries"),
		VerifyInterval:    conf.GetDuration("orchestrator.verify_interval"),
		LeaseTTL:          conf.GetDuration("orchestrator.lease_ttl"),
	}
	opts.withDefaults()
	return opts
}

func NewManager(
	conf *viper.Viper,
	providers *compute.Registry,
	instanceRepo repository.InstanceRepository,
	assocRepo repository.StandbyAssociationRepository,
	snapshotRepo repository.SnapshotRepository,
	snapshots *snapshot.Engine,
	syncEngine *syncer.Engine,
	recorder *report.Recorder,
	notifier *notify.Notifier,
	switcher Switcher,
	lease Lease,
	transport syncer.Transport,
	sid *sid.Sid,
	logger *log.Logger,
) *Manager {
	m := &Manager{
		opts:         OptionsFromConfig(conf),
		providers:    providers,
		instanceRepo: instanceRepo,
		assocRepo:    assocRepo,
		snapshotRepo: snapshotRepo,
		snapshots:    snapshots,
		syncEngine:   syncEngine,
		recorder:     recorder,
		notifier:     notifier,
		switcher:     switcher,
		lease:        lease,
		transport:    transport,
		sid:          sid,
		logger:       logger,
		active:       make(map[string]context.CancelFunc),
	}
	m.monitor = newMonitor(m, conf.GetDuration("orchestrator.health_interval"))
	return m
}

// Start launches the health monitor loop. Implements pkg/server.Server.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor.run(runCtx)
	}()
	m.logger.Info("failover manager started",
		zap.Duration("health_interval", m.monitor.interval),
		zap.Int("health_failures", m.opts.HealthFailures))
	return nil
}

// Stop halts monitoring and cancels any in-flight failovers.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

// Trigger starts a failover for the primary. confirmed skips the probe-based
// confirmation: set it for provider preemption notices and operator commands,
// leave it unset for soft signals like missed health checks.
func (m *Manager) Trigger(ctx context.Context, primaryID, reason string, confirmed bool) (string, error) {
	primary, err := m.instanceRepo.GetByInstanceID(ctx, primaryID)
	if err != nil {
		return "", err
	}
	if primary == nil {
		return "", compute.ErrInstanceNotFound
	}
	if _, err := m.assocRepo.GetAssociation(ctx, primaryID); err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, running := m.active[primaryID]; running {
		m.mu.Unlock()
		return "", ErrFailoverInProgress
	}
	m.mu.Unlock()

	acquired, err := m.lease.Acquire(ctx, primaryID, m.opts.LeaseTTL)
	if err != nil {
		return "", err
	}
	if !acquired {
		return "", ErrFailoverInProgress
	}

	eventID, err := m.sid.GenString()
	if err != nil {
		m.releaseLease(primaryID)
		return "", err
	}
	event := &model.FailoverEvent{
		EventID:           eventID,
		PrimaryInstanceID: primaryID,
		Reason:            reason,
		Status:            model.FailoverStatusInProgress,
		StartedAt:         time.Now(),
	}
	if err := m.recorder.RecordSync(ctx, event); err != nil {
		m.releaseLease(primaryID)
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.active[primaryID] = cancel
	m.mu.Unlock()

	mach := &machine{
		event:        event,
		primary:      primary,
		confirmed:    confirmed,
		opts:         m.opts,
		providers:    m.providers,
		instanceRepo: m.instanceRepo,
		assocRepo:    m.assocRepo,
		snapshotRepo: m.snapshotRepo,
		snapshots:    m.snapshots,
		syncEngine:   m.syncEngine,
		recorder:     m.recorder,
		notifier:     m.notifier,
		switcher:     m.switcher,
		probe:        m.transport.Probe,
		retry:        compute.DefaultRetryPolicy(),
		logger:       m.logger,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, primaryID)
			m.mu.Unlock()
			m.releaseLease(primaryID)
			cancel()
		}()
		mach.run(runCtx)
	}()
	return eventID, nil
}

// HandleInterruption is the entry point for provider webhook notices.
func (m *Manager) HandleInterruption(ctx context.Context, instanceID, reason string) (string, error) {
	if reason == "" {
		reason = model.ReasonSpotPreemption
	}
	eventID, err := m.Trigger(ctx, instanceID, reason, true)
	if errors.Is(err, ErrFailoverInProgress) {
		m.logger.Info("duplicate interruption signal ignored",
			zap.String("primary_instance_id", instanceID))
		return "", err
	}
	return eventID, err
}

// Cancel aborts the running failover for the primary. The machine finishes
// as FAILED with reason cancelled and tears down anything half-provisioned.
func (m *Manager) Cancel(primaryID string) error {
	m.mu.Lock()
	cancel, running := m.active[primaryID]
	m.mu.Unlock()
	if !running {
		return ErrNoFailoverRunning
	}
	cancel()
	return nil
}

// Running reports whether a failover is in flight for the primary.
func (m *Manager) Running(primaryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[primaryID]
	return running
}

func (m *Manager) releaseLease(primaryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.lease.Release(ctx, primaryID); err != nil {
		m.logger.Warn("failover lease not released",
			zap.String("primary_instance_id", primaryID), zap.Error(err))
	}
}
