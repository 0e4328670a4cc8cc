package linguist

import (
	"context"

	"github.com/pitabwire/linguist/workerpool"
)

// WithWorkerPool runs background writes on pool. The caller keeps ownership.
func WithWorkerPool(pool workerpool.WorkerPool) Option {
	return func(_ context.Context, s *Service) {
		s.pool = pool
	}
}

// WithWorkerPoolOptions builds the service's own pool with custom ants options.
func WithWorkerPoolOptions(options ...workerpool.Option) Option {
	return func(ctx context.Context, s *Service) {
		pool, err := workerpool.New(ctx, s.cfg, options...)
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.pool = pool
		s.AddCleanupMethod(func(_ context.Context) { pool.Shutdown() })
	}
}

func (s *Service) WorkerPool() workerpool.WorkerPool {
	return s.pool
}
