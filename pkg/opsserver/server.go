// Package opsserver serves the operational endpoints of a sitebuilder process: liveness and
// Prometheus metrics.
package opsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/version"
)

const readHeaderTimeout = 5 * time.Second

// NewHandler builds the router: GET /healthz, GET /metrics for gatherer and GET /version.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(version.String()))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Server is a running ops endpoint.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logx.Logger
	done   chan struct{}
}

// Start listens on addr and serves NewHandler(gatherer) in the background.
func Start(addr string, gatherer prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(gatherer),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ln:     ln,
		logger: logx.NewLogger("opsserver"),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("❌ ops server stopped: %v", err)
		}
	}()
	s.logger.Info("🚀 ops server listening on %s", s.Addr())
	return s, nil
}

// Addr returns the bound address, useful when started on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	if err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}
