// Package server exposes the gateway over HTTP: the informational endpoints,
// metrics, the event feed, and the proxy for every other path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/governance/circuitbreaker"
	"github.com/ajprasad1994/opsBuddy/internal/health"
	"github.com/ajprasad1994/opsBuddy/internal/metrics"
	"github.com/ajprasad1994/opsBuddy/internal/middleware"
	"github.com/ajprasad1994/opsBuddy/internal/registry"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// ServiceLister lists the registered services in registration order.
type ServiceLister interface {
	Services() []registry.ServiceDescriptor
	Resolve(path string) (registry.ServiceDescriptor, bool)
}

// CircuitSource reports the circuit of every service.
type CircuitSource interface {
	States() []circuitbreaker.CircuitState
}

// HealthSource reports the latest cached probe of every service.
type HealthSource interface {
	Snapshots() []health.Snapshot
}

// Options carries the server's collaborators.
type Options struct {
	Config   *config.Config
	Services ServiceLister
	Circuits CircuitSource
	Health   HealthSource

	// Proxy serves every path without a gateway route.
	Proxy http.Handler

	// Optional
	Metrics *metrics.Metrics
	Events  http.Handler
	Logger  log.Logger
	Now     func() time.Time
}

// Server represents the gateway HTTP server
type Server struct {
	config   *config.Config
	services ServiceLister
	circuits CircuitSource
	health   HealthSource
	logger   log.Logger
	now      func() time.Time

	startedAt  time.Time
	engine     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server config is required")
	}
	if opts.Services == nil || opts.Circuits == nil || opts.Health == nil || opts.Proxy == nil {
		return nil, errors.New("services, circuits, health and proxy are required")
	}

	s := &Server{
		config:   opts.Config,
		services: opts.Services,
		circuits: opts.Circuits,
		health:   opts.Health,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With(log.String(log.FieldComponent, "server"))
	s.startedAt = s.now()

	s.engine = s.newEngine(opts)
	for _, sh := range s.ShadowedRoutes() {
		s.logger.Warn("gateway route shadows service prefix, requests to it never reach the service",
			log.String(log.FieldMethod, sh.Method),
			log.String("route", sh.Path),
			log.String(log.FieldService, sh.Service),
			log.String(log.FieldPrefix, sh.Prefix),
		)
	}

	var handler http.Handler = s.engine
	handler = middleware.NewCORSMiddleware(s.config.CORS).Handler(handler)
	if s.config.Server.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:           s.config.Server.Address,
		Handler:        s.handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	return s, nil
}

func (s *Server) newEngine(opts Options) *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = false

	engine.Use(
		gin.CustomRecovery(s.handlePanic),
		middleware.AccessLog(s.logger),
		middleware.Prometheus(opts.Metrics),
	)

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/api", s.handleAPIInfo)
	engine.GET("/api/services", s.handleServices)

	if s.config.Metrics.Enabled && opts.Metrics != nil {
		engine.GET(s.config.Metrics.Path, gin.WrapH(opts.Metrics.Handler()))
	}
	if s.config.Events.WebSocket.Enabled && opts.Events != nil {
		engine.GET(s.config.Events.WebSocket.Path, gin.WrapH(opts.Events))
	}

	engine.NoRoute(gin.WrapH(opts.Proxy))
	return engine
}

// RouteShadow is a gateway route answering a path that a service prefix covers.
type RouteShadow struct {
	Method  string
	Path    string
	Service string
	Prefix  string
}

// ShadowedRoutes lists the gateway's own routes that take precedence over a
// registered service, since gin matches them before falling through to the proxy.
func (s *Server) ShadowedRoutes() []RouteShadow {
	var shadows []RouteShadow
	for _, route := range s.engine.Routes() {
		svc, ok := s.services.Resolve(route.Path)
		if !ok {
			continue
		}
		shadows = append(shadows, RouteShadow{
			Method:  route.Method,
			Path:    route.Path,
			Service: svc.Name,
			Prefix:  svc.PathPrefix,
		})
	}
	return shadows
}

// handlePanic turns a handler panic into a 500 document. A response that has
// already started cannot be replaced, so its connection is aborted instead;
// http.ErrAbortHandler is passed through to net/http untouched.
func (s *Server) handlePanic(c *gin.Context, err interface{}) {
	if err == http.ErrAbortHandler {
		panic(err)
	}

	s.logger.Error("panic recovered",
		log.String(log.FieldMethod, c.Request.Method),
		log.String(log.FieldPath, c.Request.URL.Path),
		log.Bool("response_started", c.Writer.Written()),
		log.Any(log.FieldError, err),
	)
	if c.Writer.Written() {
		panic(http.ErrAbortHandler)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":     "Internal Server Error",
		"detail":    "An unexpected error occurred",
		"timestamp": unixSeconds(s.now()),
	})
}

// Handler returns the complete HTTP handler, including CORS and h2c.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// StartedAt returns the time the server was built, the origin of uptime.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("gateway listening",
		log.String("address", ln.Addr().String()),
		log.Bool("h2c", s.config.Server.H2C),
	)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
