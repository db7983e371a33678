package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faheemlabs/faheem/pkg/logging"
)

// Server hosts the forwarder together with health and metrics
// endpoints.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func NewServer(addr string, cfg Config) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	handler := NewHandler(cfg, NewMetrics(registry))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.HandleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", handler)

	return &Server{
		http: &http.Server{
			Addr:    addr,
			Handler: mux,
			// Only the header read is bounded; bodies may be large
			// uploads that stream for minutes.
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.NewComponentLogger(slog.Default(), "relay_server"),
	}
}

func (s *Server) Start() error {
	s.logger.Info("relay listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
