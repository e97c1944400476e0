package repository

import (
	"context"
	"testing"
	"time"

	"gpustandby/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociateEnforcesOnePairPerPrimary(t *testing.T) {
	repo, tm := newTestRepository(t)
	assocRepo := NewStandbyAssociationRepository(repo, tm)
	ctx := context.Background()

	assoc, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateInitialSync, assoc.SyncState)
	assert.Equal(t, 30, assoc.SyncIntervalSeconds)
	assert.True(t, assoc.AutoFailover)
	assert.True(t, assoc.AutoRecovery)

	_, err = assocRepo.Associate(ctx, "gpu-1", "cpu-2", &AssociateConfig{SyncIntervalSeconds: 60})
	assert.ErrorIs(t, err, ErrAlreadyAssociated)

	// a standby cannot serve two primaries either
	_, err = assocRepo.Associate(ctx, "gpu-2", "cpu-1", nil)
	assert.ErrorIs(t, err, ErrStandbyInUse)
}

func TestAssociateMigrateReplacesExistingPair(t *testing.T) {
	repo, tm := newTestRepository(t)
	assocRepo := NewStandbyAssociationRepository(repo, tm)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)

	migrated, err := assocRepo.Associate(ctx, "gpu-1", "cpu-2", &AssociateConfig{
		SyncIntervalSeconds: 15,
		AutoFailover:        true,
		Migrate:             true,
	})
	require.NoError(t, err)
	assert.Equal(t, "cpu-2", migrated.StandbyInstanceID)

	current, err := assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, "cpu-2", current.StandbyInstanceID)
	assert.Equal(t, 15, current.SyncIntervalSeconds)

	// the old standby is free again
	_, err = assocRepo.Associate(ctx, "gpu-2", "cpu-1", nil)
	require.NoError(t, err)
}

func TestSyncStateAndProgressUpdates(t *testing.T) {
	repo, tm := newTestRepository(t)
	assocRepo := NewStandbyAssociationRepository(repo, tm)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)

	require.NoError(t, assocRepo.UpdateSyncState(ctx, "gpu-1", model.SyncStateReady))
	at := time.Now().Truncate(time.Second)
	require.NoError(t, assocRepo.RecordSyncProgress(ctx, "gpu-1", 4096, at))
	require.NoError(t, assocRepo.RecordSyncProgress(ctx, "gpu-1", 1024, at.Add(time.Minute)))

	assoc, err := assocRepo.GetAssociation(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateReady, assoc.SyncState)
	assert.Equal(t, int64(5120), assoc.BytesSyncedTotal)
	assert.False(t, assoc.LastSyncAt.IsZero())

	assert.ErrorIs(t, assocRepo.UpdateSyncState(ctx, "gpu-9", model.SyncStateReady), ErrAssociationNotFound)
}

func TestReplacePrimaryRepointsAndResetsSync(t *testing.T) {
	repo, tm := newTestRepository(t)
	assocRepo := NewStandbyAssociationRepository(repo, tm)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)
	require.NoError(t, assocRepo.UpdateSyncState(ctx, "gpu-1", model.SyncStateFailoverActive))

	require.NoError(t, assocRepo.ReplacePrimary(ctx, "gpu-1", "gpu-2"))

	_, err = assocRepo.GetAssociation(ctx, "gpu-1")
	assert.ErrorIs(t, err, ErrAssociationNotFound)

	assoc, err := assocRepo.GetAssociation(ctx, "gpu-2")
	require.NoError(t, err)
	assert.Equal(t, "cpu-1", assoc.StandbyInstanceID)
	assert.Equal(t, model.SyncStateInitialSync, assoc.SyncState)

	assert.ErrorIs(t, assocRepo.ReplacePrimary(ctx, "gpu-1", "gpu-3"), ErrAssociationNotFound)
}

func TestDissociateTerminates(t *testing.T) {
	repo, tm := newTestRepository(t)
	assocRepo := NewStandbyAssociationRepository(repo, tm)
	ctx := context.Background()

	_, err := assocRepo.Associate(ctx, "gpu-1", "cpu-1", nil)
	require.NoError(t, err)
	require.NoError(t, assocRepo.Dissociate(ctx, "gpu-1"))

	_, err = assocRepo.GetAssociation(ctx, "gpu-1")
	assert.ErrorIs(t, err, ErrAssociationNotFound)

	active, err := assocRepo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, assocRepo.Dissociate(ctx, "gpu-1"), ErrAssociationNotFound)
}
