// Package server wires configuration, tracing, and transports into a
// running HTTP service.
package server

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/http"
	"github.com/24ep/chatkit-starter/internal/identity"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/24ep/chatkit-starter/internal/middleware"
	"github.com/24ep/chatkit-starter/internal/monitoring"
	"github.com/24ep/chatkit-starter/internal/observe"
	"github.com/24ep/chatkit-starter/internal/upstream"
	"github.com/24ep/chatkit-starter/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	router   *gin.Engine
	logger   *logging.Logger
	exporter *observe.Client
}

// NewServer creates a fully wired server instance.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	preset, err := config.LoadWidgetPreset(cfg.Widget.PresetPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	exporter := observe.Shared(cfg.Langfuse, logger)
	exporter.SetFailureCounter(metrics.TraceSendFailures)
	exporter.SetEventCounter(metrics.RecordTraceEvent)
	if exporter.Enabled() {
		logger.Info("observability backend configured", zap.String("host", cfg.Langfuse.Host))
	} else {
		logger.Warn("observability backend disabled, traces will be dropped")
	}

	recorder := observe.NewRecorder(cfg, exporter, logger)
	resolver := identity.NewResolver(logging.IsProduction())
	minter := upstream.NewClient(cfg.ChatKit, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(context.Background(), middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := http.NewHandlers(cfg, resolver, minter, recorder, preset, metrics, logger)
	wsHandler := ws.NewHandler(cfg, resolver, minter, recorder, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.POST("/api/create-session", handlers.CreateSession)
	router.GET("/api/widget-preset", handlers.WidgetPreset)

	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:      cfg,
		router:   router,
		logger:   logger,
		exporter: exporter,
	}, nil
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully and flushes
// any in-flight trace batches.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.exporter.Flush()
	return nil
}
