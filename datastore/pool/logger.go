package pool

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pitabwire/util"
	glogger "gorm.io/gorm/logger"

	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/data"
)

// ANSI 256 colour codes used by tint for the query attributes.
const (
	tintAttrCodeDuration = 214
	tintAttrCodeRows     = 12
	tintAttrCodeQuery    = 2
)

func datastoreLogger(ctx context.Context, cfg config.ConfigurationDatabaseTracing) glogger.Interface {
	logQueries := false
	slowQueryThreshold := config.DefaultSlowQueryThreshold
	if cfg != nil {
		slowQueryThreshold = cfg.GetDatabaseSlowQueryLogThreshold()
		logQueries = cfg.CanDatabaseTraceQueries()
	}

	return &dbLogger{
		logQueries:    logQueries,
		slowThreshold: slowQueryThreshold,
		baseLogger:    util.Log(ctx).WithField("component", "datastore"),
	}
}

// dbLogger routes gorm output through the structured logger. Missing rows are
// expected on lookups and never logged as errors.
type dbLogger struct {
	baseLogger    *util.LogEntry
	logQueries    bool
	slowThreshold time.Duration
}

func (l *dbLogger) LogMode(_ glogger.LogLevel) glogger.Interface {
	return l
}

func (l *dbLogger) Info(ctx context.Context, msg string, args ...any) {
	l.baseLogger.WithContext(ctx).Info(msg, args...)
}

func (l *dbLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.baseLogger.WithContext(ctx).Warn(msg, args...)
}

func (l *dbLogger) Error(ctx context.Context, msg string, args ...any) {
	l.baseLogger.WithContext(ctx).Error(msg, args...)
}

func (l *dbLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	log := l.baseLogger.WithContext(ctx)

	slow := l.slowThreshold != 0 && elapsed > l.slowThreshold
	failed := err != nil && !data.ErrorIsNoRows(err) && !data.ErrorIsDuplicate(err)

	switch {
	case failed, slow, l.logQueries, log.Enabled(ctx, slog.LevelDebug):
	default:
		return
	}

	sql, rows := fc()
	log = log.With(
		tint.Attr(tintAttrCodeDuration, slog.String("duration", elapsed.String())),
		tint.Attr(tintAttrCodeRows, slog.String("rows", strconv.FormatInt(rows, 10))),
		tint.Attr(tintAttrCodeQuery, slog.String("query", sql)),
	)
	defer log.Release()

	switch {
	case failed:
		log.WithError(err).Error("query failed")
	case slow:
		log.WithField("threshold", l.slowThreshold.String()).Warn("query is slow")
	case l.logQueries:
		log.Info("query executed")
	default:
		log.Debug("query executed")
	}
}
