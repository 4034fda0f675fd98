package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-ticket/internal/parking"
)

type Options struct {
	Port        string
	ServiceName string
	Service     parking.TicketService
	Telemetry   *parking.TelemetryProvider
	Registry    *prometheus.Registry
	Logger      *slog.Logger
}

type Server struct {
	httpServer *http.Server
	handler    *Handler
	logger     *slog.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	handler := NewHandler(opts.Service, opts.ServiceName, logger)
	metrics := NewHTTPMetrics(registry)

	r := chi.NewRouter()

	// Recovery runs inside tracing so panics reach the request span.
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware(opts.Telemetry.Tracer()))
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/api/parking", func(r chi.Router) {
		r.Post("/entry", handler.Enter)
		r.Post("/exit", handler.Exit)
		r.Get("/tickets/{registration}", handler.GetTicket)
	})

	httpServer := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		logger:     logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
