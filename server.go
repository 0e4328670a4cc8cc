package linguist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultHTTPReadTimeout  = 15 * time.Second
	defaultHTTPWriteTimeout = 15 * time.Second
	defaultHTTPIdleTimeout  = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
)

// Run serves the HTTP API on the configured port until ctx is done or the
// server fails, then stops the service.
func (s *Service) Run(ctx context.Context) error {
	return s.Serve(ctx, nil)
}

// Serve is Run on a caller supplied listener. A nil listener binds the
// configured port.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.profiler.StartIfEnabled(ctx, s.cfg); err != nil {
		return fmt.Errorf("start profiler: %w", err)
	}

	s.server = &http.Server{
		Addr:    s.cfg.HTTPPort(),
		Handler: s.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("address", s.server.Addr).Info("http server listening")

		var err error
		if ln != nil {
			err = s.server.Serve(ln)
		} else {
			err = s.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()
		s.Stop(stopCtx)
		return nil
	})

	err := g.Wait()
	if err != nil {
		s.logger.WithError(err).Error("system exit in error")
		return err
	}
	s.logger.Debug("system exit")
	return nil
}

// Stop drains the HTTP server, then releases components in reverse order of
// construction, so the worker pool is released before storage closes. Safe to
// call more than once.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.logger.Info("service stopping")

		if s.server != nil {
			if err := s.server.Shutdown(ctx); err != nil {
				s.logger.WithError(err).Warn("http server did not shut down cleanly")
			}
		}

		if err := s.profiler.Stop(ctx); err != nil {
			s.logger.WithError(err).Warn("profiler did not shut down cleanly")
		}

		if s.ipLimiter != nil {
			if err := s.ipLimiter.Close(); err != nil {
				s.logger.WithError(err).Warn("could not close ip rate limiter")
			}
		}

		if s.cleanup != nil {
			s.cleanup(ctx)
		}
	})
}
