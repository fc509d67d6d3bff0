// Package app assembles the gateway from its configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/governance/circuitbreaker"
	"github.com/ajprasad1994/opsBuddy/internal/health"
	"github.com/ajprasad1994/opsBuddy/internal/metrics"
	"github.com/ajprasad1994/opsBuddy/internal/notify"
	"github.com/ajprasad1994/opsBuddy/internal/proxy"
	"github.com/ajprasad1994/opsBuddy/internal/registry"
	"github.com/ajprasad1994/opsBuddy/internal/server"
	pkgConfig "github.com/ajprasad1994/opsBuddy/pkg/config"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

const defaultShutdownTimeout = 15 * time.Second

// App owns every gateway component for the life of the process.
type App struct {
	config *config.Config
	logger log.Logger
	now    func() time.Time

	source     pkgConfig.Source
	registry   *registry.Registry
	breaker    *circuitbreaker.Breaker
	monitor    *health.Monitor
	metrics    *metrics.Metrics
	proxy      *proxy.ReverseProxy
	hub        *notify.Hub
	redis      *notify.RedisPublisher
	dispatcher *notify.Dispatcher
	server     *server.Server
}

// Option configures an App.
type Option func(*App)

// WithClock sets the clock shared by the breaker, the proxy and the server.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// New loads the service list and wires the gateway. Nothing is started until Run.
func New(ctx context.Context, cfg *config.Config, logger log.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.loadServices(ctx); err != nil {
		return nil, err
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) loadServices(ctx context.Context) error {
	source, err := config.CreateServicesSource(a.config)
	if err != nil {
		return err
	}
	if source == nil {
		return nil
	}
	a.source = source

	if err := config.LoadServices(ctx, a.config, source); err != nil {
		source.Close()
		return err
	}
	a.logger.Info("services loaded",
		log.String("driver", a.config.ServicesSource.Driver),
		log.Int("services", len(a.config.Services)),
	)
	return nil
}

func (a *App) build() error {
	var err error

	a.registry, err = registry.New(a.config.Services, a.logger)
	if err != nil {
		return fmt.Errorf("failed to build service registry: %w", err)
	}

	if a.config.Metrics.Enabled {
		a.metrics, err = metrics.New(metrics.Options{
			Namespace: a.config.Metrics.Namespace,
			Subsystem: a.config.Metrics.Subsystem,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	a.buildBreaker()
	a.buildMonitor()
	a.buildNotify()
	a.wireEvents()

	a.proxy = proxy.NewReverseProxy(a.registry, a.breaker,
		proxy.WithTransport(proxy.NewTransport(a.config.Proxy)),
		proxy.WithLogger(a.logger),
		proxy.WithMetrics(a.metrics),
		proxy.WithClock(a.now),
	)

	var events http.Handler
	if a.hub != nil {
		events = a.hub
	}
	a.server, err = server.New(server.Options{
		Config:   a.config,
		Services: a.registry,
		Circuits: a.breaker,
		Health:   a.monitor,
		Proxy:    a.proxy,
		Metrics:  a.metrics,
		Events:   events,
		Logger:   a.logger,
		Now:      a.now,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

func (a *App) buildBreaker() {
	descs := a.registry.Services()
	services := make([]circuitbreaker.Service, 0, len(descs))
	for _, d := range descs {
		services = append(services, circuitbreaker.Service{
			Name:             d.Name,
			FailureThreshold: d.FailureThreshold,
			RecoveryTimeout:  d.RecoveryTimeout,
		})
	}

	a.breaker = circuitbreaker.New(services, circuitbreaker.Config{
		FailureThreshold: a.config.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  a.config.CircuitBreaker.RecoveryTimeout,
	},
		circuitbreaker.WithClock(a.now),
		circuitbreaker.WithLogger(a.logger),
	)
}

func (a *App) buildMonitor() {
	client := &http.Client{
		Transport: proxy.NewTransport(a.config.Proxy),
		// Health endpoints are probed where they are, not where they redirect.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	a.monitor = health.New(a.registry.Services(), a.breaker, health.Config{
		Interval:    a.config.Monitor.Interval,
		Timeout:     a.config.Monitor.Timeout,
		Concurrency: a.config.Monitor.Concurrency,
	},
		health.WithHTTPClient(client),
		health.WithLogger(a.logger),
	)
}

func (a *App) buildNotify() {
	var publishers []notify.Publisher

	wsCfg := a.config.Events.WebSocket
	if wsCfg.Enabled {
		a.hub = notify.NewHub(wsCfg,
			notify.WithHubLogger(a.logger),
			notify.WithInitialState(a.currentHealthEvents),
		)
		publishers = append(publishers, a.hub)
	}

	redisCfg := a.config.Events.Redis
	if redisCfg.Enabled {
		pub, err := notify.NewRedisPublisher(redisCfg)
		if err != nil {
			a.logger.Warn("redis event publisher disabled",
				log.String("address", redisCfg.Address),
				log.Error(err),
			)
		} else {
			a.redis = pub
			publishers = append(publishers, pub)
			a.logger.Info("publishing events to redis",
				log.String("address", redisCfg.Address),
				log.String("channel", pub.Channel()),
			)
		}
	}

	a.dispatcher = notify.NewDispatcher(a.logger, notify.DefaultQueueSize, redisCfg.Timeout, publishers...)
}

func (a *App) currentHealthEvents() []notify.Event {
	snaps := a.monitor.Snapshots()
	events := make([]notify.Event, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Checked() {
			events = append(events, notify.HealthEvent(snap))
		}
	}
	return events
}

func (a *App) wireEvents() {
	for _, name := range a.registry.Names() {
		a.metrics.SetCircuitState(name, circuitbreaker.StateClosed.String())
	}

	a.breaker.OnStateChange(func(service string, from, to circuitbreaker.State) {
		a.metrics.SetCircuitState(service, to.String())
		a.metrics.RecordTransition(service, from.String(), to.String())
		_ = a.dispatcher.Enqueue(notify.CircuitEvent(service, from.String(), to.String(), a.now()))
	})

	a.monitor.OnSnapshot(func(snap health.Snapshot) {
		a.metrics.ObserveProbe(snap.Service, snap.Reachable, snap.Latency)
		_ = a.dispatcher.Enqueue(notify.HealthEvent(snap))
	})
}

// Handler returns the gateway's root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Registry returns the service registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Breaker returns the circuit breaker.
func (a *App) Breaker() *circuitbreaker.Breaker {
	return a.breaker
}

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.monitor
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.Address, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs one health check cycle, then serves on ln alongside the monitor
// and event delivery. When ctx is cancelled the server drains in-flight
// requests within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("starting gateway",
		log.String(log.FieldVersion, a.config.Gateway.Version),
		log.String(log.FieldEnvironment, a.config.Gateway.Environment),
		log.Int("services", a.registry.Len()),
	)
	for _, svc := range a.registry.Services() {
		a.logger.Info("route registered",
			log.String(log.FieldService, svc.Name),
			log.String(log.FieldPrefix, svc.PathPrefix),
			log.String(log.FieldBaseURL, svc.BaseURL),
		)
	}

	a.monitor.CheckAll(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.monitor.Run(gctx) })
	g.Go(func() error { return a.dispatcher.Run(gctx) })
	if a.hub != nil {
		g.Go(func() error { return a.hub.Run(gctx) })
	}
	g.Go(func() error { return a.server.Serve(ln) })
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down gateway")

		timeout := a.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		a.logger.Info("gateway stopped")
		return nil
	})

	return g.Wait()
}

// Close releases upstream connections and external clients.
func (a *App) Close() error {
	var errs []error
	if a.proxy != nil {
		errs = append(errs, a.proxy.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	return errors.Join(errs...)
}
