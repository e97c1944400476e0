package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"gpustandby/internal/model"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) (*Repository, Transaction) {
	t.Helper()
	conf := viper.New()
	conf.Set("data.db.user.driver", "sqlite")
	conf.Set("data.db.user.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")
	logger := log.NewLog(conf)

	db := NewDB(conf, logger)
	require.NoError(t, db.AutoMigrate(
		&model.Instance{},
		&model.StandbyAssociation{},
		&model.FailoverEvent{},
		&model.Snapshot{},
	))
	repo := NewRepository(logger, db)
	return repo, NewTransaction(repo)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	repo, tm := newTestRepository(t)
	instRepo := NewInstanceRepository(repo)
	ctx := context.Background()

	err := tm.Transaction(ctx, func(ctx context.Context) error {
		if err := instRepo.Create(ctx, &model.Instance{InstanceID: "gpu-1", State: model.InstanceStateRunning}); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.Error(t, err)

	got, err := instRepo.GetByInstanceID(ctx, "gpu-1")
	require.NoError(t, err)
	require.Nil(t, got)
}
