package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusFunc reports the current pipeline status for /status.
type StatusFunc func() any

// ServerConfig configures the metrics endpoint.
type ServerConfig struct {
	Address   string
	RateLimit RateLimitConfig
}

// Server exposes /metrics, /healthz and /status over HTTP.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	metrics *Metrics
	logger  *zap.Logger
}

// NewServer builds the endpoint router.
func NewServer(cfg ServerConfig, metrics *Metrics, status StatusFunc, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RateLimit(cfg.RateLimit))
	router.Use(Middleware(metrics))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		body := gin.H{"metrics": metrics.Snapshot()}
		if status != nil {
			body["pipeline"] = status()
		}
		c.JSON(http.StatusOK, body)
	})

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Metrics endpoint listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
