package repository

import (
	"context"
	"fmt"
	"time"

	"gpustandby/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const ctxTxKey = "TxKey"

type Repository struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewRepository(logger *log.Logger, db *gorm.DB) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type Transaction interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewTransaction(r *Repository) Transaction {
	return r
}

// DB returns the tx bound to ctx if one exists, otherwise the root handle.
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	v := ctx.Value(ctxTxKey)
	if v != nil {
		if tx, ok := v.(*gorm.DB); ok {
			return tx
		}
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, ctxTxKey, tx)
		return fn(ctx)
	})
}

func NewDB(conf *viper.Viper, l *log.Logger) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)

	logger := zapGormLogger{l}
	driver := conf.GetString("data.db.user.driver")
	dsn := conf.GetString("data.db.user.dsn")

	switch driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger})
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{Logger: logger})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger})
	default:
		panic("unknown db driver: " + driver)
	}
	if err != nil {
		panic(err)
	}
	db = db.Debug()
	return db
}

func NewRedis(conf *viper.Viper) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.GetString("data.redis.addr"),
		Password: conf.GetString("data.redis.password"),
		DB:       conf.GetInt("data.redis.db"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("redis error: %s", err.Error()))
	}
	return rdb
}

// zapGormLogger adapts pkg/log to gorm's logger interface.
type zapGormLogger struct {
	l *log.Logger
}

func (z zapGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return z }

func (z zapGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	z.l.WithContext(ctx).Sugar().Infof(msg, data...)
}

func (z zapGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	z.l.WithContext(ctx).Sugar().Warnf(msg, data...)
}

func (z zapGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	z.l.WithContext(ctx).Sugar().Errorf(msg, data...)
}

func (z zapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if err != nil && err != gorm.ErrRecordNotFound {
		sql, rows := fc()
		z.l.WithContext(ctx).Sugar().Errorf("sql error: %v, sql: %s, rows: %d, elapsed: %s", err, sql, rows, time.Since(begin))
	}
}
