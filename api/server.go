// Package api provides the HTTP REST API of usergrid
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/memtensor/usergrid/docs"
	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/metrics"
	"github.com/memtensor/usergrid/pkg/users"
)

// Server represents the API server instance
type Server struct {
	config    *config.Config
	manager   *users.Manager
	logger    interfaces.Logger
	metrics   interfaces.Metrics
	exporter  http.Handler
	router    *gin.Engine
	server    *http.Server
	version   string
	startTime time.Time
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithPrometheus records request metrics in m and serves them on /metrics
func WithPrometheus(m *metrics.PrometheusMetrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.exporter = m.Handler()
	}
}

// WithVersion sets the version reported by the health check
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.version = version }
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, manager *users.Manager, logger interfaces.Logger, opts ...ServerOption) *Server {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:    cfg,
		manager:   manager,
		logger:    logger,
		metrics:   metrics.NewNoOpMetrics(),
		router:    gin.New(),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Router exposes the gin engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	if s.config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		if len(s.config.CORS.Origins) == 0 || contains(s.config.CORS.Origins, "*") {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = s.config.CORS.Origins
			corsConfig.AllowCredentials = true
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", HeaderRequestID}
		corsConfig.ExposeHeaders = []string{HeaderRequestID, "Content-Disposition"}
		s.router.Use(cors.New(corsConfig))
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.exporter != nil {
		s.router.GET("/metrics", gin.WrapH(s.exporter))
	}
	if s.config.Server.Docs {
		docs.SwaggerInfo.BasePath = s.config.Server.APIPrefix
		s.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := s.router.Group(s.config.Server.APIPrefix)

	auth := api.Group("/auth")
	if s.config.RateLimit.Enabled {
		auth.Use(RateLimitMiddleware(s.config.RateLimit.RequestsPerMinute, s.config.RateLimit.Burst))
	}
	{
		auth.POST("/login", s.login)
		auth.POST("/password-recovery/:email", s.recoverPassword)
		auth.POST("/reset-password", s.resetPassword)
	}

	usersGroup := api.Group("/users", s.authRequired())
	{
		usersGroup.GET("", s.listUsers)
		usersGroup.GET("/columns", s.userColumns)
		usersGroup.GET("/me", s.getMe)
		usersGroup.PUT("/me", s.updateMe)
		usersGroup.GET("/:id", s.getUser)

		admin := usersGroup.Group("", s.superuserRequired())
		admin.POST("", s.createUser)
		admin.PUT("/:id", s.updateUser)
		admin.DELETE("/:id", s.deleteUser)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Fail("Not Found", nil))
	})
}

// Start starts the API server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"addr":   addr,
		"prefix": s.config.Server.APIPrefix,
		"mode":   gin.Mode(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("Failed to start server", err)
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	return s.Stop()
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
