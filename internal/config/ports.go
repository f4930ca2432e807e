// Package config provides configuration management for stratforge: viper
// loading with STRATFORGE_ environment overrides, validation, the zerolog
// setup and the default ports of every service.
package config

// Service ports
const (
	// APIServerPort is the port for the REST API server
	APIServerPort = 8080

	// BacktestEnginePort is the default port of the external backtest engine
	BacktestEnginePort = 8090

	// MetricsPort serves /metrics for binaries that do not run the API router
	MetricsPort = 9100
)

// Infrastructure ports
const (
	PostgresPort = 5432
	RedisPort    = 6379
)

// ServicePorts maps service names to their default ports, for health checks
// and compose files
var ServicePorts = map[string]int{
	"api":      APIServerPort,
	"engine":   BacktestEnginePort,
	"metrics":  MetricsPort,
	"postgres": PostgresPort,
	"redis":    RedisPort,
}

// GetServicePort returns the default port of a service, or 0 if unknown
func GetServicePort(name string) int {
	if port, ok := ServicePorts[name]; ok {
		return port
	}
	return 0
}
