// Package health probes backend health endpoints on a fixed interval and keeps
// the latest result per service for lock-free readers.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajprasad1994/opsBuddy/internal/registry"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// maxHealthBody bounds how much of a health response is read.
const maxHealthBody = 64 << 10

// OutcomeReporter receives probe outcomes. The circuit breaker implements it.
type OutcomeReporter interface {
	ReportOutcome(service string, success bool)
}

// Listener is called after every probe with the newly published snapshot.
type Listener func(Snapshot)

// Config represents monitor timing configuration
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		Concurrency: 8,
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Monitor) {
		if client != nil {
			m.client = client
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor probes every registered service. Snapshots are swapped atomically,
// so readers never block on a probe in progress.
type Monitor struct {
	services  []registry.ServiceDescriptor
	snapshots map[string]*atomic.Pointer[Snapshot]
	reporter  OutcomeReporter
	config    Config
	client    *http.Client
	logger    log.Logger

	listenersMu sync.RWMutex
	listeners   []Listener

	cycles atomic.Int64
}

// New creates a monitor for services. reporter may be nil.
func New(services []registry.ServiceDescriptor, reporter OutcomeReporter, cfg Config, opts ...Option) *Monitor {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}

	m := &Monitor{
		services:  services,
		snapshots: make(map[string]*atomic.Pointer[Snapshot], len(services)),
		reporter:  reporter,
		config:    cfg,
		client:    &http.Client{},
		logger:    log.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, svc := range services {
		p := &atomic.Pointer[Snapshot]{}
		p.Store(unknownSnapshot(svc.Name, svc.HealthURL()))
		m.snapshots[svc.Name] = p
	}

	return m
}

// OnSnapshot registers fn to be called after every probe.
func (m *Monitor) OnSnapshot(fn Listener) {
	if fn == nil {
		return
	}
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

// Run probes all services on every interval tick until ctx is done. If no
// cycle has run yet, the first one starts immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("health monitor started",
		log.Duration("interval", m.config.Interval),
		log.Int("services", len(m.services)),
	)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	if m.cycles.Load() == 0 {
		m.CheckAll(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs one probe cycle. Probes run concurrently up to the configured
// limit and each has its own timeout, so a slow backend never delays the others.
func (m *Monitor) CheckAll(ctx context.Context) []Snapshot {
	var g errgroup.Group
	g.SetLimit(m.config.Concurrency)

	for _, svc := range m.services {
		svc := svc
		g.Go(func() error {
			m.probe(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()
	m.cycles.Add(1)

	return m.Snapshots()
}

// probe checks one service, publishes the snapshot and reports the outcome.
// Nothing is recorded when ctx was cancelled, since the gateway is shutting down.
func (m *Monitor) probe(ctx context.Context, svc registry.ServiceDescriptor) {
	target := svc.HealthURL()
	checkedAt := time.Now()

	snap, err := m.fetch(ctx, target)
	snap.Service = svc.Name
	snap.URL = target
	snap.CheckedAt = checkedAt
	snap.Latency = time.Since(checkedAt)
	snap.LatencyMillis = float64(snap.Latency) / float64(time.Millisecond)

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		snap.Reachable = false
		snap.Status = StatusUnhealthy
		snap.LastError = err.Error()
	} else {
		snap.Reachable = true
		snap.Status = StatusHealthy
	}

	m.snapshots[svc.Name].Store(&snap)

	fields := log.HealthCheckFields(svc.Name, target, snap.Reachable, snap.Latency)
	if snap.Reachable {
		m.logger.Debug("health probe succeeded", fields...)
	} else {
		m.logger.Warn("health probe failed", append(fields, log.String(log.FieldError, snap.LastError))...)
	}

	if m.reporter != nil {
		m.reporter.ReportOutcome(svc.Name, snap.Reachable)
	}
	m.notify(snap)
}

// fetch issues the bounded-timeout GET. A non-2xx status is an error.
func (m *Monitor) fetch(ctx context.Context, target string) (Snapshot, error) {
	var snap Snapshot

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return snap, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "opsbuddy-gateway-health")

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return snap, fmt.Errorf("%w after %s", ErrProbeTimeout, m.config.Timeout)
		}
		return snap, fmt.Errorf("%w: %v", ErrProbeUnreachable, err)
	}
	defer resp.Body.Close()

	snap.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return snap, fmt.Errorf("%w reading body after %s", ErrProbeTimeout, m.config.Timeout)
		}
		return snap, fmt.Errorf("%w: reading body: %v", ErrProbeUnreachable, err)
	}
	if status := gjson.GetBytes(body, "status"); status.Exists() {
		snap.BackendStatus = status.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return snap, fmt.Errorf("%w: HTTP %d", ErrProbeStatus, resp.StatusCode)
	}
	return snap, nil
}

func (m *Monitor) notify(snap Snapshot) {
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Snapshot returns the latest snapshot for service.
func (m *Monitor) Snapshot(service string) (Snapshot, bool) {
	p, ok := m.snapshots[service]
	if !ok {
		return Snapshot{}, false
	}
	return *p.Load(), true
}

// Snapshots returns the latest snapshot of every service in registration order.
func (m *Monitor) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, *m.snapshots[svc.Name].Load())
	}
	return out
}

// Interval returns the probe interval.
func (m *Monitor) Interval() time.Duration {
	return m.config.Interval
}
