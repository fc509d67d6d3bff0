package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - circuit breaker is closed, requests pass through
	StateClosed State = iota
	// StateOpen - circuit breaker is open, requests fail fast
	StateOpen
	// StateHalfOpen - circuit breaker is half-open, a single trial request tests recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config represents circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures that will trip the circuit breaker
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a trial request is let through
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// withDefaults fills non-positive fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	return c
}

// Statistics holds lifetime counters for one circuit
type Statistics struct {
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime    time.Time `json:"last_success_time,omitempty"`
	StateChangedAt     time.Time `json:"state_changed_at"`
}

// CircuitState is a consistent copy of one service's circuit.
type CircuitState struct {
	Service             string        `json:"service"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	FailureThreshold    int           `json:"failure_threshold"`
	RecoveryTimeout     time.Duration `json:"recovery_timeout"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	TrialInFlight       bool          `json:"trial_in_flight"`
	Statistics          Statistics    `json:"statistics"`
}

// circuit is the mutable per-service state. Every field is guarded by mu.
type circuit struct {
	name   string
	config Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	trialStartedAt      time.Time
	stats               Statistics
}

func newCircuit(name string, config Config, now time.Time) *circuit {
	return &circuit{
		name:   name,
		config: config,
		state:  StateClosed,
		stats:  Statistics{StateChangedAt: now},
	}
}

// changeState moves the circuit to newState and returns the transition to publish.
// Callers hold c.mu.
func (c *circuit) changeState(newState State, now time.Time) transition {
	from := c.state
	c.state = newState
	c.stats.StateChangedAt = now

	switch newState {
	case StateOpen:
		c.openedAt = now
		c.trialInFlight = false
	case StateClosed:
		c.consecutiveFailures = 0
		c.openedAt = time.Time{}
		c.trialInFlight = false
	}

	return transition{name: c.name, from: from, to: newState, failures: c.consecutiveFailures, threshold: c.config.FailureThreshold}
}

// snapshot copies the circuit. Callers hold c.mu.
func (c *circuit) snapshot() CircuitState {
	return CircuitState{
		Service:             c.name,
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		FailureThreshold:    c.config.FailureThreshold,
		RecoveryTimeout:     c.config.RecoveryTimeout,
		OpenedAt:            c.openedAt,
		TrialInFlight:       c.trialInFlight,
		Statistics:          c.stats,
	}
}

// transition records a state change to be published after the lock is released.
type transition struct {
	name      string
	from, to  State
	failures  int
	threshold int
}
