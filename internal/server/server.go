package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/api/middleware"
	"github.com/ttyflow/backend/internal/config"
	"github.com/ttyflow/backend/internal/logging"
	"github.com/ttyflow/backend/internal/monitoring"
	"github.com/ttyflow/backend/internal/session"
)

// Server is the HTTP/WebSocket front end over the session manager.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	sessions *session.Manager
	router   *gin.Engine
	httpSrv  *http.Server
}

// New wires the service: metrics, session manager, and routes.
func New(cfg *config.Config, log *logging.Logger) *Server {
	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		registry: registry,
	}

	s.sessions = session.NewManager(
		session.Config{
			DefaultShell: cfg.Session.DefaultShell,
			BacklogBytes: cfg.Session.BacklogBytes,
		},
		log.Logger.Named("session"),
		session.WithExitHook(func(string) {
			metrics.SessionsActive.Dec()
		}),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(nil))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.POST("/sessions", s.handleCreateSession)
	router.GET("/sessions", s.handleListSessions)
	router.GET("/sessions/:id", s.handleGetSession)
	router.DELETE("/sessions/:id", s.handleKillSession)
	router.POST("/sessions/:id/resize", s.handleResizeSession)
	router.GET("/sessions/:id/metrics", s.handleSessionMetrics)
	router.GET("/sessions/:id/stream", s.handleStream)

	s.router = router
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully: open
// streams get shutdownGrace to drain before sessions are killed.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	err := s.httpSrv.Shutdown(shutdownCtx)
	s.sessions.Shutdown()
	return err
}

const shutdownGrace = 10 * time.Second
