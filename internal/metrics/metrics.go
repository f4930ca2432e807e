package metrics

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Strategy validation failure reasons (bounded set)
	ValidationReasonSchemaInvalid   = "schema_invalid"
	ValidationReasonFieldMissing    = "field_missing"
	ValidationReasonValueOutOfRange = "value_out_of_range"
	ValidationReasonIncompatible    = "incompatible"
	ValidationReasonOther           = "other"

	// Backtest engine error categories (bounded set)
	BacktestErrorTimeout     = "timeout"
	BacktestErrorCanceled    = "canceled"
	BacktestErrorCircuitOpen = "circuit_open"
	BacktestErrorNetwork     = "network"
	BacktestErrorInvalidReq  = "invalid_request"
	BacktestErrorServerError = "server_error"
	BacktestErrorOther       = "other"
)

// NormalizeValidationReason maps arbitrary validation failures to bounded set
func NormalizeValidationReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "schema") || strings.Contains(lower, "version"):
		return ValidationReasonSchemaInvalid
	case strings.Contains(lower, "missing") || strings.Contains(lower, "required"):
		return ValidationReasonFieldMissing
	case strings.Contains(lower, "range") || strings.Contains(lower, "value") || strings.Contains(lower, "invalid"):
		return ValidationReasonValueOutOfRange
	case strings.Contains(lower, "compatible") || strings.Contains(lower, "migration"):
		return ValidationReasonIncompatible
	default:
		return ValidationReasonOther
	}
}

// NormalizeBacktestError maps backtest engine errors to a bounded set
func NormalizeBacktestError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return BacktestErrorCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return BacktestErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return BacktestErrorTimeout
		}
		return BacktestErrorNetwork
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return BacktestErrorTimeout
	case strings.Contains(errStr, "circuit breaker") || strings.Contains(errStr, "too many requests"):
		return BacktestErrorCircuitOpen
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return BacktestErrorNetwork
	case strings.Contains(errStr, "status 4") || strings.Contains(errStr, "invalid"):
		return BacktestErrorInvalidReq
	case strings.Contains(errStr, "status 5"):
		return BacktestErrorServerError
	default:
		return BacktestErrorOther
	}
}

// Variable and resolution metrics
var (
	VariableMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_variable_mutations_total",
		Help: "Variable registry mutations by operation and outcome",
	}, []string{"operation", "status"})

	DanglingReferences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratforge_dangling_references_total",
		Help: "References resolved to 0 because their variable no longer exists",
	})

	UnknownIndicatorKinds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratforge_unknown_indicator_kinds_total",
		Help: "Indicator kinds that fell back to generic defaults or labels",
	})
)

// Optimization metrics
var (
	SearchSpaceSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratforge_search_space_size",
		Help:    "True combination count of requested search spaces",
		Buckets: prometheus.ExponentialBuckets(1, 10, 10),
	})

	SearchSpaceTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratforge_search_space_truncations_total",
		Help: "Search spaces cut off at the combination cap",
	})

	OptimizationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_optimization_runs_total",
		Help: "Finished optimization runs by final status",
	}, []string{"status"})

	OptimizationRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratforge_optimization_run_duration_seconds",
		Help:    "Wall time of optimization runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})

	OptimizationRunsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratforge_optimization_runs_by_status",
		Help: "Persisted optimization runs by status",
	}, []string{"status"})

	ActiveOptimizationRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratforge_active_optimization_runs",
		Help: "Optimization runs currently executing in this process",
	})
)

// Backtest engine metrics
var (
	BacktestCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratforge_backtest_call_duration_ms",
		Help:    "Backtest engine call latency in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"status"})

	BacktestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_backtest_errors_total",
		Help: "Backtest engine errors by category",
	}, []string{"category"})

	BacktestCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_backtest_cache_lookups_total",
		Help: "Backtest metrics cache lookups by result",
	}, []string{"result"})

	CacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratforge_cache_hit_rate",
		Help: "Backtest metrics cache hit rate (0.0 to 1.0)",
	})

	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_redis_operations_total",
		Help: "Redis operations by command",
	}, []string{"operation"})

	CircuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratforge_circuit_breaker_status",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open",
	}, []string{"breaker"})
)

// Strategy document metrics
var (
	StrategyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_strategy_operations_total",
		Help: "Strategy document operations by type and outcome",
	}, []string{"operation", "status"})

	StrategyValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_strategy_validation_failures_total",
		Help: "Strategy validation failures by normalized reason",
	}, []string{"reason"})
)

// System metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratforge_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method", "path", "status"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratforge_database_connections_active",
		Help: "Acquired database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratforge_database_connections_idle",
		Help: "Idle database connections",
	})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratforge_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratforge_errors_total",
		Help: "Errors by type and component",
	}, []string{"type", "component"})
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordVariableMutation records a registry add/update/remove
func RecordVariableMutation(operation string, success bool) {
	VariableMutations.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordDanglingReference records a reference resolved against a missing variable
func RecordDanglingReference() {
	DanglingReferences.Inc()
}

// RecordUnknownIndicatorKind records a fallback to generic indicator handling
func RecordUnknownIndicatorKind() {
	UnknownIndicatorKinds.Inc()
}

// RecordSearchSpace records the size of a generated search space
func RecordSearchSpace(total uint64, truncated bool) {
	SearchSpaceSize.Observe(float64(total))
	if truncated {
		SearchSpaceTruncations.Inc()
	}
}

// RecordOptimizationRun records a finished optimization run
func RecordOptimizationRun(status string, durationSeconds float64) {
	OptimizationRuns.WithLabelValues(status).Inc()
	OptimizationRunDuration.Observe(durationSeconds)
}

// RecordBacktestCall records a backtest engine call with normalized error category
func RecordBacktestCall(durationMs float64, err error) {
	BacktestCallDuration.WithLabelValues(statusLabel(err == nil)).Observe(durationMs)
	if err != nil {
		BacktestErrors.WithLabelValues(NormalizeBacktestError(err)).Inc()
	}
}

// RecordBacktestCacheLookup records a cache hit or miss
func RecordBacktestCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	BacktestCacheLookups.WithLabelValues(result).Inc()
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// UpdateCircuitBreaker sets the breaker state gauge (0 closed, 1 half-open, 2 open)
func UpdateCircuitBreaker(breaker string, state int) {
	CircuitBreakerStatus.WithLabelValues(breaker).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker opening
func RecordCircuitBreakerTrip(breaker string) {
	CircuitBreakerTrips.WithLabelValues(breaker).Inc()
}

// RecordStrategyOperation records a strategy operation
func RecordStrategyOperation(operation string, success bool) {
	StrategyOperations.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordStrategyValidationFailure records a strategy validation failure with normalized reason
func RecordStrategyValidationFailure(reason string) {
	StrategyValidationFailures.WithLabelValues(NormalizeValidationReason(reason)).Inc()
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}
