package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// setupRoutes configures all API routes. write guards endpoints that start
// or destroy work.
func (s *Server) setupRoutes(write gin.HandlerFunc) {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleGetHealth)
	s.router.GET("/metrics", metrics.GinHandler())

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleGetHealth)
		v1.GET("/status", s.handleGetStatus)

		ind := v1.Group("/indicators")
		{
			ind.GET("", s.handleListIndicators)
			ind.GET("/:kind/defaults", s.handleIndicatorDefaults)
			ind.POST("/label", s.handleIndicatorLabel)
			ind.POST("/preview", s.handleIndicatorPreview)
		}

		strategies := v1.Group("/strategies")
		{
			strategies.POST("/default", s.handleDefaultStrategy)
			strategies.POST("/validate", s.handleValidateStrategy)
			strategies.POST("/resolve", s.handleResolveStrategy)
			strategies.POST("/import", s.handleImportStrategy)
			strategies.POST("/export", s.handleExportStrategy)

			strategies.POST("/variables", s.handleAddVariable)
			strategies.PATCH("/variables/:id", s.handleUpdateVariable)
			strategies.DELETE("/variables/:id", s.handleRemoveVariable)

			strategies.GET("", s.handleListStrategies)
			strategies.POST("", write, s.handleSaveStrategy)
			strategies.GET("/:id", s.handleGetStrategy)
			strategies.GET("/:id/history", s.handleStrategyHistory)
			strategies.DELETE("/:id", write, s.handleDeleteStrategy)
		}

		opt := v1.Group("/optimization")
		{
			opt.GET("/objectives", s.handleListObjectives)
			opt.POST("/space", s.handleSearchSpace)
			opt.POST("/rank", s.handleRank)

			opt.GET("/runs", s.handleListRuns)
			opt.POST("/runs", write, s.limits.runMiddleware(), s.handleCreateRun)
			opt.GET("/runs/:id", s.handleGetRun)
			opt.GET("/runs/:id/report.xlsx", s.handleRunWorkbook)
			opt.GET("/runs/:id/stream", s.handleRunStream)
			opt.POST("/runs/:id/cancel", write, s.handleCancelRun)
			opt.DELETE("/runs/:id", write, s.handleDeleteRun)
		}
	}
}
