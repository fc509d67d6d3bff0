package proxy

import (
	"encoding/json"
	"net/http"
	"time"
)

// Forwarding outcomes, used as log values and metric labels.
const (
	OutcomeSuccess      = "success"
	OutcomeBackendError = "backend_error"
	OutcomeTimeout      = "timeout"
	OutcomeUnreachable  = "unreachable"
	OutcomeCancelled    = "cancelled"
	OutcomeRejected     = "rejected"
	OutcomeNotFound     = "not_found"
)

// StatusClientClosedRequest is recorded when the client goes away before the
// backend answers. The client never reads it; it only shows up in logs and metrics.
const StatusClientClosedRequest = 499

// ErrorResponse is the JSON document returned for every response the gateway
// generates itself instead of relaying from a backend.
type ErrorResponse struct {
	Error        string  `json:"error"`
	Detail       string  `json:"detail"`
	Timestamp    float64 `json:"timestamp"`
	Service      string  `json:"service,omitempty"`
	CircuitState string  `json:"circuit_state,omitempty"`
	RetryAfter   int     `json:"retry_after,omitempty"`
	RequestID    string  `json:"request_id,omitempty"`
}

// unixSeconds renders t as fractional seconds since the epoch.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
