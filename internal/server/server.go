// Package server exposes conversations, saved sessions and the gallery over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mhpenta/detailsmatter/extract"
	"github.com/mhpenta/detailsmatter/internal/app"
)

const (
	shutdownTimeout = 10 * time.Second
	maxUploadSize   = 256 << 20
	metricsPath     = "/metrics"
	healthPath      = "/health"
)

var (
	ginMetrics     *ginprometheus.Prometheus
	ginMetricsOnce sync.Once
)

// Server is the HTTP shell over an App.
type Server struct {
	app      *app.App
	sessions *registry
	probe    *extract.Chain
	logger   *zap.Logger
	router   *gin.Engine

	metrics bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves Prometheus metrics at /metrics and records request metrics.
func WithMetrics() Option {
	return func(s *Server) {
		s.metrics = true
	}
}

// New builds the router.
func New(a *app.App, opts ...Option) *Server {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		app:      a,
		sessions: newRegistry(),
		logger:   logger.Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	// uploads arrive as raw fields or data URIs, never as model responses
	s.probe = extract.NewChain(s.logger, extract.NewFieldProbe())

	s.router = gin.New()
	s.router.Use(requestLogger(s.logger, healthPath, metricsPath))
	s.router.Use(gin.Recovery())
	s.router.MaxMultipartMemory = 32 << 20

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	if a.Config != nil && len(a.Config.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = a.Config.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	s.router.Use(cors.New(corsConfig))

	if s.metrics {
		ginMetricsOnce.Do(func() {
			ginMetrics = ginprometheus.NewPrometheus("detailsmatter_http")
			ginMetrics.MetricsPath = metricsPath
			ginMetrics.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
				if p := c.FullPath(); p != "" {
					return p
				}
				return "unmatched"
			}
		})
		ginMetrics.Use(s.router)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.len()})
	}
	s.router.GET(healthPath, health)
	s.router.HEAD(healthPath, health)

	api := s.router.Group("/api")
	api.GET("/styles", s.listStyles)
	api.GET("/models", s.listModels)

	throttle := s.throttle()
	sessions := api.Group("/sessions")
	sessions.POST("", throttle, s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.closeSession)
	sessions.POST("/:id/continue", throttle, s.continueSession)
	sessions.POST("/:id/undo", s.undoTurn)
	sessions.POST("/:id/reset", s.resetSession)
	sessions.POST("/:id/direct", throttle, s.directSession)
	sessions.PATCH("/:id/settings", s.updateSettings)
	sessions.POST("/:id/turns/:index/regenerate", throttle, s.regenerateTurn)
	sessions.GET("/:id/turns/:index/image", s.turnImage)
	sessions.POST("/:id/export", s.exportSession)
	sessions.POST("/:id/publish", s.publishSession)

	saved := api.Group("/saved")
	saved.GET("", s.listSaved)
	saved.POST("/load", s.loadSaved)
	saved.POST("/upload", s.uploadArchive)
	saved.GET("/:name/archive", s.downloadArchive)

	g := api.Group("/gallery")
	g.GET("", s.listGallery)
	g.GET("/search", s.searchGallery)
	g.GET("/images/:key", s.galleryImage)
	g.GET("/threads/:id", s.getThread)
	g.GET("/threads/:id/lineage", s.threadLineage)
	g.POST("/threads/:id/fork", s.forkThread)
}

// throttle limits the endpoints that call models, per client IP.
func (s *Server) throttle() gin.HandlerFunc {
	if s.app.Config == nil || s.app.Config.Throttle.Requests == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  s.app.Config.Throttle.Window,
		Limit: s.app.Config.Throttle.Requests,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		KeyFunc: func(c *gin.Context) string { return c.ClientIP() },
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.Header("Retry-After", strconv.Itoa(int(time.Until(info.ResetTime).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    "rate_limited",
				Message: "too many generation requests, try again later",
			})
		},
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("starting http server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server listen error", zap.Error(err))
			return err
		}
		return nil
	})
	if idle := s.sessionIdle(); idle > 0 {
		eg.Go(func() error {
			ticker := time.NewTicker(max(idle/4, time.Minute))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.expireSessions(idle)
				}
			}
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})
	return eg.Wait()
}

func (s *Server) sessionIdle() time.Duration {
	if s.app.Config == nil {
		return 0
	}
	return s.app.Config.Storage.SessionIdle
}

func (s *Server) listStyles(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Styles)
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.app.Images.Models(), "text_model": s.app.TextModel})
}
