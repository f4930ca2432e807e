package api

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/config"
)

var startTime = time.Now()

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Stratforge API",
		"version": config.Version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// checkComponents pings every configured dependency
func (s *Server) checkComponents(c *gin.Context) (gin.H, bool) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	components := gin.H{}
	for _, name := range names {
		status := "healthy"
		if err := s.checks[name].Ping(c.Request.Context()); err != nil {
			status = "unhealthy"
			healthy = false
			log.Warn().Err(err).Str("component", name).Msg("Health check failed")
		}
		components[name] = gin.H{"status": status}
	}
	return components, healthy
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	components, healthy := s.checkComponents(c)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "unhealthy",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"time":       time.Now().UTC(),
		"components": components,
	})
}

// handleGetStatus returns runtime and component status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	components, healthy := s.checkComponents(c)
	systemStatus := "healthy"
	if !healthy {
		systemStatus = "degraded"
	}
	components["run_manager"] = gin.H{"status": configured(s.runs != nil)}

	c.JSON(http.StatusOK, gin.H{
		"status":        systemStatus,
		"timestamp":     time.Now().UTC(),
		"uptime":        time.Since(startTime).Seconds(),
		"version":       config.Version,
		"max_variables": s.maxVariables,
		"components":    components,
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
