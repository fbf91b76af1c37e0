// Package server exposes the ingestion pipeline over HTTP.
//
// Routes:
//
//	POST /api/v1/put                                       push a sample batch
//	GET  /api/v1/nodes/{identity}/{hostname}/overview      latest snapshot
//	GET  /api/v1/nodes/{identity}/{hostname}/charts/{chart} ring series
//	GET  /api/v1/stats                                     ingestion counters
//	GET  /healthz                                          store health
//	GET  /metrics                                          Prometheus exposition
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/storage/ingestion"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/storage/snapshot"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8080").
	Listen string

	// TrustForwardedFor takes the identity from X-Forwarded-For.
	TrustForwardedFor bool

	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// RejectLimit and RejectWindow configure the RejectLimiter.
	RejectLimit  int
	RejectWindow time.Duration
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the handlers use.
type Deps struct {
	Ingest    *ingestion.Service
	Snapshots *snapshot.Store
	Series    *ring.Store
	Registry  *charts.Registry

	// Gatherer serves /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Checks run on /healthz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// =============================================================================
// Server
// =============================================================================

// Server is the HTTP front end of the ingestion pipeline.
type Server struct {
	cfg      Config
	deps     Deps
	rejects  *RejectLimiter
	handler  http.Handler
	http     *http.Server
	requests atomic.Uint64
}

// New creates a server. Zero config values take defaults.
func New(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		rejects: NewRejectLimiter(cfg.RejectLimit, cfg.RejectWindow),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/put", s.handlePut)
	mux.HandleFunc("GET /api/v1/nodes/{identity}/{hostname}/overview", s.handleOverview)
	mux.HandleFunc("GET /api/v1/nodes/{identity}/{hostname}/charts/{chart}", s.handleChart)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return s.withRequestID(mux)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases background resources. Serve calls it on return.
func (s *Server) Close() {
	s.rejects.Stop()
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// withRequestID tags each request context with X-Request-ID, generating one
// when the client sent none.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = strconv.FormatUint(s.requests.Add(1), 36)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// identity returns the source identity of r: the first X-Forwarded-For
// entry when trusted, otherwise the peer IP.
func (s *Server) identity(r *http.Request) string {
	if s.cfg.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return extractIP(r.RemoteAddr)
}

// extractIP extracts the IP address from a remote address string.
func extractIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
