package log

import (
	"time"
)

// Standard field names for consistent logging across the gateway
const (
	FieldError     = "error"
	FieldComponent = "component"

	// Request/Response fields
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldClientIP     = "client_ip"
	FieldUserAgent    = "user_agent"
	FieldTargetURL    = "target_url"
	FieldResponseSize = "response_size"

	// Service fields
	FieldService     = "service"
	FieldVersion     = "version"
	FieldEnvironment = "environment"
	FieldPrefix      = "path_prefix"
	FieldBaseURL     = "base_url"

	// Outcome fields
	FieldOutcome = "outcome"
	FieldLatency = "latency"

	// Circuit breaker fields
	FieldCircuitState = "circuit_state"
	FieldFromState    = "from_state"
	FieldToState      = "to_state"
	FieldFailures     = "consecutive_failures"
	FieldThreshold    = "threshold"
	FieldRetryAfter   = "retry_after"

	// Health check fields
	FieldReachable  = "reachable"
	FieldHealthPath = "health_path"
)

// RequestFields creates standard request logging fields
func RequestFields(requestID, method, path string) []Field {
	return []Field{
		String(FieldRequestID, requestID),
		String(FieldMethod, method),
		String(FieldPath, path),
	}
}

// ResponseFields creates standard response logging fields
func ResponseFields(statusCode int, latency time.Duration) []Field {
	return []Field{
		Int(FieldStatusCode, statusCode),
		Duration(FieldLatency, latency),
	}
}

// CircuitBreakerFields creates standard circuit breaker logging fields
func CircuitBreakerFields(service, state string, failures, threshold int) []Field {
	return []Field{
		String(FieldService, service),
		String(FieldCircuitState, state),
		Int(FieldFailures, failures),
		Int(FieldThreshold, threshold),
	}
}

// HealthCheckFields creates standard health check logging fields
func HealthCheckFields(service, endpoint string, reachable bool, latency time.Duration) []Field {
	return []Field{
		String(FieldService, service),
		String(FieldHealthPath, endpoint),
		Bool(FieldReachable, reachable),
		Duration(FieldLatency, latency),
	}
}
