package server

import (
	"time"

	"github.com/ajprasad1994/opsBuddy/internal/governance/circuitbreaker"
	"github.com/ajprasad1994/opsBuddy/internal/health"
)

// GatewayInfo identifies the gateway in every status document.
type GatewayInfo struct {
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Environment string  `json:"environment,omitempty"`
	Status      string  `json:"status,omitempty"`
	Uptime      float64 `json:"uptime,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
}

// WelcomeResponse is served on GET /.
type WelcomeResponse struct {
	Message     string      `json:"message"`
	Gateway     GatewayInfo `json:"gateway"`
	Services    []string    `json:"services"`
	HealthCheck string      `json:"health_check"`
	Status      string      `json:"status"`
}

// HealthResponse is served on GET /health. It is built from cached snapshots only.
type HealthResponse struct {
	Status            string                     `json:"status"`
	Gateway           GatewayInfo                `json:"gateway"`
	Services          map[string]health.Snapshot `json:"services"`
	UnhealthyServices []string                   `json:"unhealthy_services"`
}

// CircuitBreakerStatus is the per-service circuit entry of GET /status.
type CircuitBreakerStatus struct {
	State                  circuitbreaker.State      `json:"state"`
	FailureCount           int                       `json:"failure_count"`
	FailureThreshold       int                       `json:"failure_threshold"`
	RecoveryTimeoutSeconds float64                   `json:"recovery_timeout_seconds"`
	LastFailureTime        *float64                  `json:"last_failure_time"`
	OpenedAt               *float64                  `json:"opened_at,omitempty"`
	TrialInFlight          bool                      `json:"trial_in_flight"`
	Statistics             circuitbreaker.Statistics `json:"statistics"`
}

// StatusResponse is served on GET /status.
type StatusResponse struct {
	Gateway         GatewayInfo                     `json:"gateway"`
	Services        map[string]health.Snapshot      `json:"services"`
	CircuitBreakers map[string]CircuitBreakerStatus `json:"circuit_breakers"`
}

// ServiceRoute describes how one service is reached through the gateway.
type ServiceRoute struct {
	BasePath  string   `json:"base_path"`
	Target    string   `json:"target"`
	Rewrite   string   `json:"rewrite,omitempty"`
	Endpoints []string `json:"endpoints"`
}

// APIInfoResponse is served on GET /api.
type APIInfoResponse struct {
	Gateway           GatewayInfo             `json:"gateway"`
	AvailableServices map[string]ServiceRoute `json:"available_services"`
	RoutingRules      map[string]string       `json:"routing_rules"`
}

// ServiceSummary is one entry of GET /api/services, the dashboard service list.
type ServiceSummary struct {
	Name         string               `json:"name"`
	BaseURL      string               `json:"base_url"`
	PathPrefix   string               `json:"path_prefix"`
	Status       string               `json:"status"`
	ResponseTime float64              `json:"response_time"`
	LastChecked  *float64             `json:"last_checked"`
	CircuitState circuitbreaker.State `json:"circuit_state"`
	Description  string               `json:"description"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// optionalUnix renders a zero time as JSON null.
func optionalUnix(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	v := unixSeconds(t)
	return &v
}
