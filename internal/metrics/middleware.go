package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no registered route, keeping the
// path label bounded
const unmatchedRoute = "unmatched"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// HTTPMiddleware instruments a plain net/http handler
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode), duration)
	})
}

// GinMiddleware instruments gin routes, labelling by route template
// (/optimization/runs/:id) rather than the raw path
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), duration)
	}
}
