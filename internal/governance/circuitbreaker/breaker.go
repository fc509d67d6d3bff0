// Package circuitbreaker gates forwarding to each backend service with a
// CLOSED / OPEN / HALF_OPEN state machine kept per service.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// Decision reasons
const (
	ReasonClosed         = "circuit closed"
	ReasonTrial          = "half-open trial"
	ReasonOpen           = "circuit open"
	ReasonTrialInFlight  = "half-open trial in flight"
	ReasonUnknownService = "unknown service"
)

// Decision is the answer to CanForward. A rejection is a normal result, not an error.
type Decision struct {
	Allowed bool
	State   State
	Reason  string

	// RetryAfter is the remaining recovery time when the circuit is open.
	RetryAfter time.Duration

	// Trial is set when the caller holds the single HALF_OPEN permit and must
	// either report an outcome or call ReleaseTrial.
	Trial bool
}

// StateChangeFunc is called after a circuit changes state, outside the circuit lock.
type StateChangeFunc func(service string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces the wall clock used for recovery timing.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger log.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Service names a circuit and its optional per-service overrides.
// Zero override fields fall back to the breaker's default Config.
type Service struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Breaker owns one circuit per service. The circuit map is built in New and
// never modified afterwards, so lookups need no lock; each circuit has its own mutex.
type Breaker struct {
	circuits map[string]*circuit
	order    []string
	now      func() time.Time
	logger   log.Logger

	listenersMu sync.RWMutex
	listeners   []StateChangeFunc
}

// New creates a breaker with one CLOSED circuit per service.
func New(services []Service, defaults Config, opts ...Option) *Breaker {
	b := &Breaker{
		circuits: make(map[string]*circuit, len(services)),
		order:    make([]string, 0, len(services)),
		now:      time.Now,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	defaults = defaults.withDefaults()
	now := b.now()

	for _, svc := range services {
		if _, exists := b.circuits[svc.Name]; exists {
			continue
		}
		cfg := defaults
		if svc.FailureThreshold > 0 {
			cfg.FailureThreshold = svc.FailureThreshold
		}
		if svc.RecoveryTimeout > 0 {
			cfg.RecoveryTimeout = svc.RecoveryTimeout
		}
		b.circuits[svc.Name] = newCircuit(svc.Name, cfg, now)
		b.order = append(b.order, svc.Name)
	}

	return b
}

// OnStateChange registers fn to be called on every state transition.
func (b *Breaker) OnStateChange(fn StateChangeFunc) {
	if fn == nil {
		return
	}
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenersMu.Unlock()
}

// CanForward decides whether a request to service may be sent to the backend.
// An OPEN circuit whose recovery timeout has elapsed moves to HALF_OPEN here and
// the caller receives the trial permit; concurrent callers are rejected until the
// trial reports back.
func (b *Breaker) CanForward(service string) Decision {
	c, ok := b.circuits[service]
	if !ok {
		return Decision{Reason: ReasonUnknownService}
	}

	now := b.now()
	var changes []transition

	c.mu.Lock()
	decision := b.decide(c, now, &changes)
	c.mu.Unlock()

	b.publish(changes)
	return decision
}

// decide evaluates CanForward with c.mu held.
func (b *Breaker) decide(c *circuit, now time.Time, changes *[]transition) Decision {
	switch c.state {
	case StateClosed:
		return Decision{Allowed: true, State: StateClosed, Reason: ReasonClosed}

	case StateOpen:
		elapsed := now.Sub(c.openedAt)
		if elapsed < c.config.RecoveryTimeout {
			c.stats.RejectedRequests++
			return Decision{
				State:      StateOpen,
				Reason:     ReasonOpen,
				RetryAfter: c.config.RecoveryTimeout - elapsed,
			}
		}
		*changes = append(*changes, c.changeState(StateHalfOpen, now))
	}

	// HALF_OPEN. A permit that was never reported back expires after one
	// recovery window so a lost caller cannot wedge the circuit.
	if c.trialInFlight && now.Sub(c.trialStartedAt) < c.config.RecoveryTimeout {
		c.stats.RejectedRequests++
		return Decision{State: StateHalfOpen, Reason: ReasonTrialInFlight}
	}
	c.trialInFlight = true
	c.trialStartedAt = now
	return Decision{Allowed: true, State: StateHalfOpen, Reason: ReasonTrial, Trial: true}
}

// ReportOutcome records the result of a forwarded request or a health probe.
//
// CLOSED: a failure increments the consecutive count and trips the circuit at the
// threshold; a success resets the count. OPEN: failures are counted, successes are
// ignored, and the recovery window is not restarted. HALF_OPEN: the outcome settles
// the trial, closing the circuit on success and reopening it on failure.
func (b *Breaker) ReportOutcome(service string, success bool) {
	c, ok := b.circuits[service]
	if !ok {
		return
	}

	now := b.now()
	var changes []transition

	c.mu.Lock()
	if success {
		c.stats.SuccessfulRequests++
		c.stats.LastSuccessTime = now
	} else {
		c.stats.FailedRequests++
		c.stats.LastFailureTime = now
	}

	switch c.state {
	case StateClosed:
		if success {
			c.consecutiveFailures = 0
			break
		}
		c.consecutiveFailures++
		if c.consecutiveFailures >= c.config.FailureThreshold {
			changes = append(changes, c.changeState(StateOpen, now))
		}

	case StateOpen:
		if !success {
			c.consecutiveFailures++
		}

	case StateHalfOpen:
		if success {
			changes = append(changes, c.changeState(StateClosed, now))
		} else {
			c.consecutiveFailures++
			changes = append(changes, c.changeState(StateOpen, now))
		}
	}
	c.mu.Unlock()

	b.publish(changes)
}

// ReleaseTrial returns an unused HALF_OPEN permit, for example when the client
// went away before the backend answered. The circuit stays HALF_OPEN.
func (b *Breaker) ReleaseTrial(service string) {
	c, ok := b.circuits[service]
	if !ok {
		return
	}

	c.mu.Lock()
	if c.state == StateHalfOpen {
		c.trialInFlight = false
	}
	c.mu.Unlock()
}

// Snapshot returns a consistent copy of one service's circuit.
func (b *Breaker) Snapshot(service string) (CircuitState, bool) {
	c, ok := b.circuits[service]
	if !ok {
		return CircuitState{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), true
}

// States returns a copy of every circuit in registration order.
func (b *Breaker) States() []CircuitState {
	states := make([]CircuitState, 0, len(b.order))
	for _, name := range b.order {
		c := b.circuits[name]
		c.mu.Lock()
		states = append(states, c.snapshot())
		c.mu.Unlock()
	}
	return states
}

func (b *Breaker) publish(changes []transition) {
	if len(changes) == 0 {
		return
	}

	b.listenersMu.RLock()
	listeners := b.listeners
	b.listenersMu.RUnlock()

	for _, tr := range changes {
		fields := log.CircuitBreakerFields(tr.name, tr.to.String(), tr.failures, tr.threshold)
		fields = append(fields, log.String(log.FieldFromState, tr.from.String()), log.String(log.FieldToState, tr.to.String()))
		if tr.to == StateOpen {
			b.logger.Warn("circuit breaker opened", fields...)
		} else {
			b.logger.Info("circuit breaker state changed", fields...)
		}

		for _, fn := range listeners {
			fn(tr.name, tr.from, tr.to)
		}
	}
}
