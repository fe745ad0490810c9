// # internal/server/server.go

// Package server exposes the analysis engine over HTTP: a JSON analyze
// endpoint, file upload, review history, and the operational surfaces
// (health, metrics, the OpenAPI contract). Handlers hold no analysis
// state of their own; they forward source text to the engine and return
// its report verbatim.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reviewd/internal/analyzer"
	"reviewd/internal/config"
	"reviewd/internal/history"
)

// Server serves the review API. Everything a request handler reads from
// configuration sits behind an atomic pointer, so a config reload swaps
// settings without blocking in-flight traffic.
type Server struct {
	address string
	timeout time.Duration
	server  *http.Server

	state atomic.Pointer[runtimeState]

	store    *history.Store    // nil when history is disabled
	recorder *history.Recorder // nil when history is disabled
	openapi  []byte
}

// runtimeState bundles the per-request settings derived from one config
// snapshot. A reload replaces the whole bundle in one step.
type runtimeState struct {
	cfg      *config.Config
	opts     analyzer.Options
	matchers []glob.Glob
	limiter  *LimiterRegistry // nil when rate limiting is disabled
}

func (st *runtimeState) uploadAllowed(name string) bool {
	for _, m := range st.matchers {
		if m.Match(name) {
			return true
		}
	}
	return false
}

// New builds a server from a validated configuration. store and recorder
// may be nil when history is disabled.
func New(cfg *config.Config, store *history.Store, recorder *history.Recorder) (*Server, error) {
	doc, err := openAPIDocument()
	if err != nil {
		return nil, err
	}

	s := &Server{
		address:  cfg.Server.Address,
		timeout:  cfg.Server.RequestTimeout.Duration,
		store:    store,
		recorder: recorder,
		openapi:  doc,
	}
	if err := s.swapConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateConfig installs a reloaded configuration. Handlers pick up analysis
// thresholds, size limits, upload patterns, and rate limits on their next
// request; the listen address and timeouts stay fixed until restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg.Server.Address != s.address {
		slog.Warn("server.address changed in config; restart to apply",
			"running", s.address, "configured", cfg.Server.Address)
	}
	if err := s.swapConfig(cfg); err != nil {
		slog.Error("config reload rejected", "error", err)
		return
	}
	slog.Info("configuration reloaded")
}

func (s *Server) swapConfig(cfg *config.Config) error {
	matchers, err := cfg.Upload.Matchers()
	if err != nil {
		return err
	}

	prev := s.state.Load()
	next := &runtimeState{
		cfg:      cfg,
		opts:     cfg.AnalysisOptions(),
		matchers: matchers,
		limiter:  buildLimiter(cfg, prev),
	}
	s.state.Store(next)

	if prev != nil && prev.limiter != nil && prev.limiter != next.limiter {
		prev.limiter.Stop()
	}
	return nil
}

// buildLimiter reuses the previous registry when the rate-limit settings
// are unchanged, keeping per-client buckets warm across reloads.
func buildLimiter(cfg *config.Config, prev *runtimeState) *LimiterRegistry {
	rl := cfg.Server.RateLimit
	if !rl.IsEnabled() {
		return nil
	}
	if prev != nil && prev.limiter != nil {
		old := prev.cfg.Server.RateLimit
		if old.IsEnabled() && old.RequestsPerMinute == rl.RequestsPerMinute && old.Burst == rl.Burst {
			return prev.limiter
		}
	}

	// Convert RPM to tokens per second.
	perSecond := float64(rl.RequestsPerMinute) / 60.0
	return NewLimiterRegistry(perSecond, rl.Burst, 10*time.Minute)
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/analyze/upload", s.handleUpload)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
	mux.Handle("/metrics", promhttp.Handler())

	return s.logRequests(s.cors(mux))
}

// Start runs the HTTP server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("review server listening", "address", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	if st := s.state.Load(); st != nil && st.limiter != nil {
		st.limiter.Stop()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}
