package linguist

import (
	"context"
	"log/slog"

	"github.com/pitabwire/util"
)

// WithLogger builds the service logger from the logging configuration.
// NewService applies it before any caller supplied option.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Service) {
		logLevel, err := util.ParseLevel(s.cfg.LoggingLevel())
		if err == nil {
			opts = append(opts, util.WithLogLevel(logLevel))
		}
		opts = append(opts,
			util.WithLogTimeFormat(s.cfg.LoggingTimeFormat()),
			util.WithLogNoColor(!s.cfg.LoggingColored()))
		if s.cfg.LoggingShowStackTrace() {
			opts = append(opts, util.WithLogStackTrace())
		}

		s.logger = util.NewLogger(ctx, opts...).WithField("service", s.Name())
	}
}

func (s *Service) Log(ctx context.Context) *util.LogEntry {
	return s.logger.WithContext(ctx)
}

func (s *Service) SLog(ctx context.Context) *slog.Logger {
	return s.Log(ctx).SLog()
}
