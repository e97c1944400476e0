package repository

import (
	"context"
	"path/filepath"
	"testing"

	"gpustandby/internal/model"
	"gpustandby/pkg/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestInstanceUpsertSkipsUnchangedRows(t *testing.T) {
	repo, _ := newTestRepository(t)
	instRepo := NewInstanceRepository(repo)
	ctx := context.Background()

	inst := &model.Instance{
		InstanceID: "gpu-1",
		Provider:   "SPOT_GPU",
		GpuType:    "RTX4090",
		GpuCount:   1,
		VRAMGb:     24,
		State:      model.InstanceStateRunning,
		IPAddress:  "10.0.0.1",
		Region:     "us-east",
	}
	require.NoError(t, instRepo.Upsert(ctx, inst))

	created, err := instRepo.GetByInstanceID(ctx, "gpu-1")
	require.NoError(t, err)
	require.NotNil(t, created)
	firstHash := created.ResourceHash
	assert.NotEmpty(t, firstHash)

	// same payload: only last_sync_time moves, the hash stays
	same := *inst
	same.Id = 0
	require.NoError(t, instRepo.Upsert(ctx, &same))
	after, err := instRepo.GetByInstanceID(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, firstHash, after.ResourceHash)
	assert.Equal(t, created.Id, after.Id)

	// changed payload rewrites the row under the same id
	changed := *inst
	changed.Id = 0
	changed.State = model.InstanceStateInterrupted
	require.NoError(t, instRepo.Upsert(ctx, &changed))
	after, err = instRepo.GetByInstanceID(ctx, "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, created.Id, after.Id)
	assert.Equal(t, model.InstanceStateInterrupted, after.State)
	assert.NotEqual(t, firstHash, after.ResourceHash)
}

func TestInstanceListWithPagination(t *testing.T) {
	repo, _ := newTestRepository(t)
	instRepo := NewInstanceRepository(repo)
	ctx := context.Background()

	for _, inst := range []*model.Instance{
		{InstanceID: "gpu-1", Provider: "SPOT_GPU", State: model.InstanceStateRunning},
		{InstanceID: "gpu-2", Provider: "SPOT_GPU", State: model.InstanceStateDestroyed},
		{InstanceID: "cpu-1", Provider: "CPU_STANDBY", State: model.InstanceStateRunning},
	} {
		require.NoError(t, instRepo.Create(ctx, inst))
	}

	insts, total, err := instRepo.ListWithPagination(ctx, 1, 10, "SPOT_GPU", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, insts, 2)

	insts, total, err = instRepo.ListWithPagination(ctx, 1, 10, "", model.InstanceStateRunning)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	insts, total, err = instRepo.ListWithPagination(ctx, 2, 2, "", "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, insts, 1)
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	conf := viper.New()
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	return NewRepository(log.NewLog(conf), db), mock
}

func TestInstanceGetByInstanceIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	instRepo := NewInstanceRepository(repo)

	mock.ExpectQuery("SELECT \\* FROM `instance`").
		WithArgs("gpu-missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inst, err := instRepo.GetByInstanceID(context.Background(), "gpu-missing")
	require.NoError(t, err)
	assert.Nil(t, inst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateState(t *testing.T) {
	repo, mock := newMockRepository(t)
	instRepo := NewInstanceRepository(repo)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `instance` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := instRepo.UpdateState(context.Background(), "gpu-1", model.InstanceStateInterrupted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
