// Package api serves the strategy builder and optimizer over HTTP: indicator
// catalog and labels, stateless strategy editing (variables, validation,
// resolution), search-space previews, ranking, and asynchronous optimization
// runs with WebSocket progress streams.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// DefaultPreviewLimit bounds the assignments returned by a search-space preview
const DefaultPreviewLimit = 20

// Pinger checks connectivity of an optional dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

// Ping calls f
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server represents the REST API server
type Server struct {
	router     *gin.Engine
	runs       *backtest.RunManager
	strategies StrategyStore
	indicators *indicators.Service
	checks     map[string]Pinger
	limits     *rateLimits
	hub        *Hub

	// ctx bounds the background workers: rate limit cleanup and the hub
	ctx    context.Context
	cancel context.CancelFunc

	maxVariables int
	previewLimit int
	addr         string
	server       *http.Server
}

// Config contains server configuration
type Config struct {
	Host string
	Port int

	// Runs executes optimization runs; run endpoints answer 503 without it
	Runs *backtest.RunManager

	// Strategies persists strategy documents; MemoryStrategyStore when nil
	Strategies StrategyStore

	// Checks are pinged by /health, keyed by component name
	Checks map[string]Pinger

	MaxVariables   int
	PreviewLimit   int
	AllowedOrigins []string
	Auth           AuthConfig
	RateLimit      RateLimitConfig
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())

	limits := newRateLimits(config.RateLimit)
	router.Use(limits.globalMiddleware())

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: origins[0] != "*",
		MaxAge:           12 * time.Hour,
	}))

	if config.MaxVariables <= 0 {
		config.MaxVariables = variables.DefaultMaxVariables
	}
	if config.PreviewLimit <= 0 {
		config.PreviewLimit = DefaultPreviewLimit
	}
	if config.Strategies == nil {
		config.Strategies = NewMemoryStrategyStore()
	}

	server := &Server{
		router:       router,
		runs:         config.Runs,
		strategies:   config.Strategies,
		indicators:   indicators.NewService(),
		checks:       config.Checks,
		limits:       limits,
		hub:          NewHub(),
		maxVariables: config.MaxVariables,
		previewLimit: config.PreviewLimit,
		addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	server.ctx, server.cancel = context.WithCancel(context.Background())
	go server.hub.Run(server.ctx)
	if server.runs != nil {
		server.runs.OnEvent(server.hub.Publish)
	}
	server.setupRoutes(APIKeyMiddleware(config.Auth))

	return server
}

// Router exposes the handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.limits.startCleanup(s.ctx)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

// respondError writes the error envelope used by every handler
func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}
