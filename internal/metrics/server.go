package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serverShutdownTimeout = 5 * time.Second
	defaultMetricsPath    = "/metrics"
)

// ServerConfig holds the metrics endpoint settings.
type ServerConfig struct {
	ListenAddr string
	Port       int
	Path       string
}

// Server exposes the collector's registry over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	metrics    *PrometheusMetrics
	logger     *slog.Logger
}

// NewServer creates a metrics server for pm. A nil logger uses slog.Default.
func NewServer(cfg ServerConfig, pm *PrometheusMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = defaultMetricsPath
	}

	s := &Server{
		router:  mux.NewRouter(),
		metrics: pm,
		logger:  logger.With("component", "metrics-server"),
	}

	s.router.Handle(cfg.Path, promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{
		ErrorLog: &recoveryLogger{logger: s.logger},
	})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	var handler http.Handler = s.router
	handler = handlers.CustomLoggingHandler(io.Discard, handler, s.logRequest)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(&recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(false),
	)(handler)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting metrics server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Metrics server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("Metrics server stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ok uptime=%s\n", s.metrics.GetUptime().Round(time.Second))
}

func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Debug("HTTP request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"status", params.StatusCode,
		"size", params.Size,
		"remote", params.Request.RemoteAddr)
}

// recoveryLogger adapts slog to the Println-style loggers expected by
// gorilla/handlers and promhttp.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l *recoveryLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}
