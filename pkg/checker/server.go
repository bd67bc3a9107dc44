package checker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/modguard/modguard/pkg/config"
	"github.com/modguard/modguard/pkg/domain"
	"github.com/modguard/modguard/pkg/telemetry"
)

// Server is the watch-mode front end: it re-runs the check whenever the
// config provider publishes a new snapshot and serves the latest report,
// health and metrics over HTTP.
type Server struct {
	provider *config.FileProvider
	metrics  *telemetry.PromMetrics
	logger   *slog.Logger

	mu         sync.RWMutex
	lastReport *domain.CheckReport

	httpServer *http.Server
}

// NewServer creates a watch-mode server over the given provider.
func NewServer(provider *config.FileProvider, metrics *telemetry.PromMetrics, logger *slog.Logger) *Server {
	return &Server{
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start begins serving on addr and launches the snapshot loop. It returns
// once the listener is active; call Stop to shut down.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/report", s.handleReport)
	mux.Handle("/metrics", s.metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "modguard.watch"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.snapshotLoop(ctx)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("watch server failed", "error", err)
		}
	}()

	s.logger.Info("watch server listening", "addr", addr)
	return nil
}

// Stop shuts down the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// LastReport returns the most recent check report, nil before the first run.
func (s *Server) LastReport() *domain.CheckReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

func (s *Server) snapshotLoop(ctx context.Context) {
	updates := s.provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.runOnce(ctx, cfg)
		}
	}
}

func (s *Server) runOnce(ctx context.Context, cfg *config.Config) {
	c, err := New(ctx, cfg, s.logger)
	if err != nil {
		s.logger.Error("snapshot rejected", "error", err)
		s.metrics.ObserveReload(false)
		return
	}
	s.metrics.ObserveReload(true)

	report, err := c.Run(ctx)
	if err != nil {
		s.logger.Error("check run failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.metrics.ObserveReport(report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.logger.Error("write health response", "error", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	report := s.LastReport()
	if report == nil {
		http.Error(w, `{"error":"no check run yet"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Error("write report response", "error", err)
	}
}
