// Package profiler serves the pprof endpoints on a separate debug port.
package profiler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/config"
)

const (
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
)

// Server manages the pprof server lifecycle.
type Server struct {
	server   *http.Server
	listener net.Listener
}

func NewServer() *Server {
	return &Server{}
}

// Handler exposes /debug/pprof/* without touching http.DefaultServeMux.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartIfEnabled binds the profiler port and serves in the background. The
// bind happens before returning so a taken port is reported to the caller.
func (s *Server) StartIfEnabled(ctx context.Context, cfg config.ConfigurationProfiler) error {
	if !cfg.ProfilerEnabled() || s.server != nil {
		return nil
	}

	log := util.Log(ctx)
	ln, err := net.Listen("tcp", cfg.ProfilerPort())
	if err != nil {
		return err
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	log.WithField("address", ln.Addr().String()).Info("starting pprof server")

	srv := s.server
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.WithError(serveErr).Error("pprof server failed")
		}
	}()
	return nil
}

// Addr is the bound address, empty when not running.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) IsRunning() bool {
	return s.server != nil
}

// Stop gracefully shuts down the pprof server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.server, s.listener = nil, nil
	if err != nil {
		util.Log(ctx).WithError(err).Error("failed to shutdown pprof server")
	}
	return err
}
