package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pitabwire/linguist/data"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

func gormConfig(ctx context.Context, opts *Options) *gorm.Config {
	return &gorm.Config{
		Logger:                 datastoreLogger(ctx, opts.TraceConfig),
		SkipDefaultTransaction: opts.SkipDefaultTransaction,
		TranslateError:         true,
	}
}

func openPostgres(ctx context.Context, dsn data.DSN, opts *Options) (*gorm.DB, error) {
	keyValue, err := dsn.PostgresKeyValue()
	if err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(keyValue)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if opts.MaxOpen > 0 {
		cfg.MaxConns = int32(min(opts.MaxOpen, 1<<15)) //nolint:gosec // bounded above
	}
	if opts.MaxLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxLifetime
	}

	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pgxPool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err = otelpgx.RecordStats(pgxPool); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("unable to record database stats: %w", err)
	}

	return gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 stdlib.OpenDBFromPool(pgxPool),
			PreferSimpleProtocol: opts.PreferSimpleProtocol,
		}),
		gormConfig(ctx, opts),
	)
}

func openSQLite(ctx context.Context, dsn data.DSN, opts *Options) (*gorm.DB, error) {
	path := dsn.SQLitePath()
	db, err := gorm.Open(sqlite.Open(path), gormConfig(ctx, opts))
	if err != nil {
		return nil, err
	}

	// every connection to :memory: is a separate database, so keep exactly one alive
	if path == ":memory:" {
		opts.MaxOpen = 1
		opts.MaxIdle = 1
		opts.MaxLifetime = 0
	}
	return db, nil
}

func connect(ctx context.Context, dsn data.DSN, opts *Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch {
	case dsn.IsPostgres():
		db, err = openPostgres(ctx, dsn, opts)
	case dsn.IsSQLite():
		db, err = openSQLite(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, dsn.Redacted())
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxLifetime)
	}
	return db, nil
}
