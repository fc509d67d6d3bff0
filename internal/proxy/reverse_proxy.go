// Package proxy forwards matched requests to backend services, guarded by the
// per-service circuit breaker.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/governance/circuitbreaker"
	"github.com/ajprasad1994/opsBuddy/internal/metrics"
	"github.com/ajprasad1994/opsBuddy/internal/registry"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// Gateway headers
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderResponseTime = "X-Response-Time"
	HeaderCircuitState = "X-Circuit-Breaker-State"
	HeaderRetryAfter   = "Retry-After"
	HeaderUserAgent    = "OpsBuddy-Gateway/1.0"
)

// Resolver maps an escaped request path to the service that owns it.
type Resolver interface {
	Resolve(path string) (registry.ServiceDescriptor, bool)
	Services() []registry.ServiceDescriptor
}

// CircuitBreaker gates forwarding and receives the outcome of each forward.
type CircuitBreaker interface {
	CanForward(service string) circuitbreaker.Decision
	ReportOutcome(service string, success bool)
	ReleaseTrial(service string)
}

// Option configures a ReverseProxy.
type Option func(*ReverseProxy)

// WithTransport replaces the transport used to reach backends.
func WithTransport(rt http.RoundTripper) Option {
	return func(rp *ReverseProxy) {
		if rt != nil {
			rp.transport = rt
		}
	}
}

// WithLogger sets the logger for routing decisions.
func WithLogger(logger log.Logger) Option {
	return func(rp *ReverseProxy) {
		if logger != nil {
			rp.logger = logger
		}
	}
}

// WithMetrics records forwarding metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(rp *ReverseProxy) {
		rp.metrics = m
	}
}

// WithClock replaces the clock used for error timestamps.
func WithClock(now func() time.Time) Option {
	return func(rp *ReverseProxy) {
		if now != nil {
			rp.now = now
		}
	}
}

// ReverseProxy routes requests by path prefix and forwards them with one
// httputil.ReverseProxy per service.
type ReverseProxy struct {
	resolver  Resolver
	breaker   CircuitBreaker
	transport http.RoundTripper
	metrics   *metrics.Metrics
	logger    log.Logger
	now       func() time.Time
	proxies   map[string]*httputil.ReverseProxy
}

// NewTransport builds the backend transport from proxy configuration.
// Compression is left to the client so bodies are relayed byte for byte.
func NewTransport(cfg config.ProxyConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
}

// NewReverseProxy creates a proxy for every service the resolver knows.
func NewReverseProxy(resolver Resolver, breaker CircuitBreaker, opts ...Option) *ReverseProxy {
	rp := &ReverseProxy{
		resolver: resolver,
		breaker:  breaker,
		logger:   log.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rp)
	}
	if rp.transport == nil {
		rp.transport = NewTransport(config.Default().Proxy)
	}
	rp.logger = rp.logger.With(log.String(log.FieldComponent, "proxy"))

	services := resolver.Services()
	rp.proxies = make(map[string]*httputil.ReverseProxy, len(services))
	for _, svc := range services {
		rp.proxies[svc.Name] = rp.newServiceProxy(svc)
	}
	return rp
}

func (rp *ReverseProxy) newServiceProxy(svc registry.ServiceDescriptor) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = svc.TargetURL(pr.In.URL)
			pr.Out.Host = ""
			pr.SetXForwarded()
			if pr.Out.Header.Get("X-Real-IP") == "" {
				pr.Out.Header.Set("X-Real-IP", getClientIP(pr.In))
			}
			if pr.Out.Header.Get("User-Agent") == "" {
				pr.Out.Header.Set("User-Agent", HeaderUserAgent)
			}
		},
		Transport:      rp.transport,
		ModifyResponse: rp.modifyResponse,
		ErrorHandler:   rp.errorHandler,
	}
}

// forwardKey carries the per-request forwardState through the proxy callbacks.
type forwardKey struct{}

type forwardState struct {
	service   string
	start     time.Time
	requestID string
	outcome   string
	err       error

	// Set when the backend body failed after the headers were relayed.
	bodyErr     error
	bodyOutcome string
}

func stateFrom(ctx context.Context) *forwardState {
	if st, ok := ctx.Value(forwardKey{}).(*forwardState); ok {
		return st
	}
	return &forwardState{}
}

// ServeHTTP implements http.Handler.
func (rp *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(HeaderRequestID, requestID)
	}
	ctx := log.WithRequestID(r.Context(), requestID)
	logger := rp.logger.WithContext(ctx)
	rw := NewResponseWrapper(w)

	svc, ok := rp.resolver.Resolve(r.URL.EscapedPath())
	if !ok {
		rw.Header().Set(HeaderRequestID, requestID)
		writeError(rw, http.StatusNotFound, ErrorResponse{
			Error:     "Not Found",
			Detail:    fmt.Sprintf("No route found for path: %s", r.URL.Path),
			Timestamp: unixSeconds(rp.now()),
			RequestID: requestID,
		})
		rp.metrics.ObserveForward("", r.Method, http.StatusNotFound, OutcomeNotFound, time.Since(start))
		logger.Warn("no route found", rp.decisionFields(r, "", OutcomeNotFound, http.StatusNotFound, time.Since(start))...)
		return
	}

	decision := rp.breaker.CanForward(svc.Name)
	if !decision.Allowed {
		rp.reject(rw, r, svc, decision, requestID, start, logger)
		return
	}

	done := rp.metrics.ForwardStarted(svc.Name)
	defer done()

	st := &forwardState{service: svc.Name, start: start, requestID: requestID}
	defer rp.settle(rw, r, svc, decision, st, logger)

	fctx, cancel := context.WithTimeout(context.WithValue(ctx, forwardKey{}, st), svc.Timeout)
	defer cancel()

	proxy, ok := rp.proxies[svc.Name]
	if !ok {
		proxy = rp.newServiceProxy(svc)
	}
	proxy.ServeHTTP(rw, r.WithContext(fctx))
}

// reject answers a request the circuit breaker refused, without any backend I/O.
func (rp *ReverseProxy) reject(w http.ResponseWriter, r *http.Request, svc registry.ServiceDescriptor, d circuitbreaker.Decision, requestID string, start time.Time, logger log.Logger) {
	retryAfter := retryAfterSeconds(d.RetryAfter)

	w.Header().Set(HeaderRequestID, requestID)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	w.Header().Set(HeaderCircuitState, d.State.String())
	writeError(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:        "Service Unavailable",
		Detail:       fmt.Sprintf("Service %s is temporarily unavailable (%s)", svc.Name, d.Reason),
		Timestamp:    unixSeconds(rp.now()),
		Service:      svc.Name,
		CircuitState: d.State.String(),
		RetryAfter:   retryAfter,
		RequestID:    requestID,
	})

	elapsed := time.Since(start)
	rp.metrics.RecordRejection(svc.Name, d.State.String())
	rp.metrics.ObserveForward(svc.Name, r.Method, http.StatusServiceUnavailable, OutcomeRejected, elapsed)

	fields := rp.decisionFields(r, svc.Name, OutcomeRejected, http.StatusServiceUnavailable, elapsed)
	fields = append(fields,
		log.String(log.FieldCircuitState, d.State.String()),
		log.Int(log.FieldRetryAfter, retryAfter),
	)
	logger.Warn("request rejected by circuit breaker", fields...)
}

// settle reports the forward outcome to the breaker, then logs and records it.
// A client that went away leaves no verdict; a held trial permit is returned.
func (rp *ReverseProxy) settle(rw *ResponseWrapper, r *http.Request, svc registry.ServiceDescriptor, d circuitbreaker.Decision, st *forwardState, logger log.Logger) {
	if st.bodyErr != nil {
		st.outcome = st.bodyOutcome
		st.err = st.bodyErr
	}

	switch st.outcome {
	case OutcomeSuccess:
		rp.breaker.ReportOutcome(svc.Name, true)
	case OutcomeBackendError, OutcomeTimeout, OutcomeUnreachable:
		rp.breaker.ReportOutcome(svc.Name, false)
	default:
		if st.outcome == "" {
			st.outcome = OutcomeCancelled
		}
		if d.Trial {
			rp.breaker.ReleaseTrial(svc.Name)
		}
	}

	elapsed := time.Since(st.start)
	status := rw.StatusCode()
	rp.metrics.ObserveForward(svc.Name, r.Method, status, st.outcome, elapsed)

	fields := rp.decisionFields(r, svc.Name, st.outcome, status, elapsed)
	fields = append(fields, log.String(log.FieldTargetURL, svc.TargetURL(r.URL).String()))
	if d.Trial {
		fields = append(fields, log.String(log.FieldCircuitState, d.State.String()))
	}

	switch st.outcome {
	case OutcomeSuccess:
		logger.Info("request forwarded", fields...)
	case OutcomeCancelled:
		logger.Info("client closed request", fields...)
	default:
		if st.err != nil {
			fields = append(fields, log.Error(st.err))
		}
		logger.Error("forward failed", fields...)
	}
}

func (rp *ReverseProxy) decisionFields(r *http.Request, service, outcome string, status int, latency time.Duration) []log.Field {
	fields := []log.Field{
		log.String(log.FieldService, service),
		log.String(log.FieldMethod, r.Method),
		log.String(log.FieldPath, r.URL.Path),
		log.String(log.FieldOutcome, outcome),
	}
	return append(fields, log.ResponseFields(status, latency)...)
}

// modifyResponse classifies the backend answer and stamps gateway headers.
// Status, headers and body are otherwise relayed unchanged. The classification
// is provisional until the body has been copied.
func (rp *ReverseProxy) modifyResponse(resp *http.Response) error {
	st := &forwardState{}
	if resp.Request != nil {
		st = stateFrom(resp.Request.Context())
		// Upgraded connections need the raw body to stay an io.ReadWriteCloser.
		if resp.Body != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			resp.Body = &watchedBody{ReadCloser: resp.Body, ctx: resp.Request.Context(), st: st}
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		st.outcome = OutcomeBackendError
	} else {
		st.outcome = OutcomeSuccess
	}

	if st.requestID != "" {
		resp.Header.Set(HeaderRequestID, st.requestID)
	}
	if !st.start.IsZero() {
		resp.Header.Set(HeaderResponseTime, formatMillis(time.Since(st.start)))
	}
	return nil
}

// watchedBody records the first failed read of a backend body, classified
// against the forward context at the moment it failed.
type watchedBody struct {
	io.ReadCloser
	ctx context.Context
	st  *forwardState
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF && b.st.bodyErr == nil {
		b.st.bodyErr = err
		b.st.bodyOutcome = classifyError(b.ctx, err)
	}
	return n, err
}

// errorHandler turns transport failures into 502/504 documents.
func (rp *ReverseProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	st := stateFrom(r.Context())
	st.err = err
	st.outcome = classifyError(r.Context(), err)

	service := st.service
	if st.requestID != "" {
		w.Header().Set(HeaderRequestID, st.requestID)
	}

	switch st.outcome {
	case OutcomeCancelled:
		w.WriteHeader(StatusClientClosedRequest)
	case OutcomeTimeout:
		writeError(w, http.StatusGatewayTimeout, ErrorResponse{
			Error:     "Gateway Timeout",
			Detail:    fmt.Sprintf("Service %s did not respond in time", service),
			Timestamp: unixSeconds(rp.now()),
			Service:   service,
			RequestID: st.requestID,
		})
	default:
		writeError(w, http.StatusBadGateway, ErrorResponse{
			Error:     "Bad Gateway",
			Detail:    fmt.Sprintf("Failed to forward request to %s: %v", service, err),
			Timestamp: unixSeconds(rp.now()),
			Service:   service,
			RequestID: st.requestID,
		})
	}
}

// classifyError tells a client cancellation from a backend timeout or a
// connection failure. ctx is the forward context, derived from the client's.
func classifyError(ctx context.Context, err error) string {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return OutcomeCancelled
	case errors.Is(ctxErr, context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeUnreachable
}

// Close releases idle backend connections.
func (rp *ReverseProxy) Close() error {
	if t, ok := rp.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64) + "ms"
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
