package pool

import (
	"context"

	"github.com/pitabwire/util"
	"gorm.io/gorm"

	"github.com/pitabwire/linguist/data"
)

// Pool owns the database handle every repository shares.
type Pool interface {
	DB(ctx context.Context) *gorm.DB
	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

type pool struct {
	db  *gorm.DB
	dsn data.DSN
}

// New connects to dsn, which may be a postgres url or key/value string or a sqlite path.
func New(ctx context.Context, dsn data.DSN, opts ...Option) (Pool, error) {
	poolOpts := defaultOptions()
	for _, opt := range opts {
		opt(poolOpts)
	}

	db, err := connect(ctx, dsn, poolOpts)
	if err != nil {
		return nil, err
	}

	util.Log(ctx).WithField("database", dsn.Redacted()).Debug("database connection established")
	return &pool{db: db, dsn: dsn}, nil
}

// DB returns a fresh session bound to ctx.
func (p *pool) DB(ctx context.Context) *gorm.DB {
	return p.db.Session(&gorm.Session{NewDB: true}).WithContext(ctx)
}

func (p *pool) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *pool) Close(ctx context.Context) {
	sqlDB, err := p.db.DB()
	if err != nil {
		return
	}
	util.CloseAndLogOnError(ctx, sqlDB, "could not close database "+p.dsn.Redacted())
}
