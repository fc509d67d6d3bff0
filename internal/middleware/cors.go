package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ajprasad1994/opsBuddy/internal/config"
)

var defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD", "PATCH"}

// CORSMiddleware handles Cross-Origin Resource Sharing (CORS) for the whole
// gateway, including proxied responses.
type CORSMiddleware struct {
	config config.CORSConfig
}

// corsDecision is the result of evaluating one request against the policy
type corsDecision struct {
	allowed     bool
	preflight   bool
	origin      string
	reason      string
	wantHeaders string
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(cfg config.CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{config: cfg}
}

// Handler wraps next with the CORS policy
func (c *CORSMiddleware) Handler(next http.Handler) http.Handler {
	if !c.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := c.evaluate(r)

		// Not a CORS request
		if d.origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")

		if d.preflight {
			if !d.allowed {
				http.Error(w, "CORS policy violation: "+d.reason, http.StatusForbidden)
				return
			}
			c.setPreflightHeaders(w.Header(), d)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !d.allowed {
			http.Error(w, "CORS policy violation: "+d.reason, http.StatusForbidden)
			return
		}

		// Backends may send their own CORS headers; the gateway policy wins.
		next.ServeHTTP(&corsWriter{ResponseWriter: w, apply: func(h http.Header) {
			c.setActualRequestHeaders(h, d)
		}}, r)
	})
}

// evaluate checks the request against the configured policy
func (c *CORSMiddleware) evaluate(r *http.Request) corsDecision {
	d := corsDecision{origin: r.Header.Get("Origin")}
	if d.origin == "" {
		d.allowed = true
		return d
	}

	if !c.isOriginAllowed(d.origin) {
		d.reason = "origin not allowed"
		return d
	}

	method := r.Method
	if r.Method == http.MethodOptions {
		if requested := r.Header.Get("Access-Control-Request-Method"); requested != "" {
			d.preflight = true
			method = requested
			d.wantHeaders = r.Header.Get("Access-Control-Request-Headers")
		}
	}

	if !c.isMethodAllowed(method) {
		d.reason = "method not allowed"
		return d
	}
	if d.preflight && !c.areHeadersAllowed(parseHeadersList(d.wantHeaders)) {
		d.reason = "headers not allowed"
		return d
	}

	d.allowed = true
	return d
}

// isOriginAllowed checks if the origin is allowed
func (c *CORSMiddleware) isOriginAllowed(origin string) bool {
	if c.config.AllowAllOrigins {
		return true
	}

	for _, allowedOrigin := range c.config.AllowedOrigins {
		if matchOrigin(origin, allowedOrigin) {
			return true
		}
	}

	return false
}

// matchOrigin checks if origin matches the allowed origin pattern.
// Patterns are "*", an exact origin, or a "*.example.com" wildcard.
func matchOrigin(origin, pattern string) bool {
	if pattern == "*" || origin == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		domain := pattern[2:]
		hostname := origin
		if _, rest, ok := strings.Cut(origin, "://"); ok {
			hostname = rest
		}
		if host, _, err := net.SplitHostPort(hostname); err == nil {
			hostname = host
		}
		return strings.HasSuffix(hostname, "."+domain) || hostname == domain
	}

	return false
}

// isMethodAllowed checks if the HTTP method is allowed
func (c *CORSMiddleware) isMethodAllowed(method string) bool {
	for _, allowed := range c.allowedMethods() {
		if allowed == "*" || strings.EqualFold(method, allowed) {
			return true
		}
	}
	return false
}

func (c *CORSMiddleware) allowedMethods() []string {
	if len(c.config.AllowedMethods) == 0 {
		return defaultCORSMethods
	}
	return c.config.AllowedMethods
}

// areHeadersAllowed checks if the headers are allowed
func (c *CORSMiddleware) areHeadersAllowed(headers []string) bool {
	if len(c.config.AllowedHeaders) == 0 {
		return true
	}

	for _, header := range headers {
		if !c.isHeaderAllowed(header) {
			return false
		}
	}
	return true
}

// isHeaderAllowed checks if a specific header is allowed
func (c *CORSMiddleware) isHeaderAllowed(header string) bool {
	header = strings.ToLower(strings.TrimSpace(header))

	switch header {
	case "accept", "accept-language", "content-language", "content-type":
		return true
	}

	for _, allowedHeader := range c.config.AllowedHeaders {
		if allowedHeader == "*" || strings.ToLower(allowedHeader) == header {
			return true
		}
	}
	return false
}

// parseHeadersList parses comma-separated headers list
func parseHeadersList(headersList string) []string {
	if headersList == "" {
		return nil
	}

	headers := strings.Split(headersList, ",")
	result := make([]string, 0, len(headers))
	for _, header := range headers {
		if header = strings.TrimSpace(header); header != "" {
			result = append(result, header)
		}
	}
	return result
}

// allowOrigin returns the Access-Control-Allow-Origin value. Credentialed
// requests cannot use "*", so the origin is echoed instead.
func (c *CORSMiddleware) allowOrigin(origin string) string {
	if c.config.AllowAllOrigins && !c.config.AllowCredentials {
		return "*"
	}
	return origin
}

// setPreflightHeaders sets headers for preflight requests
func (c *CORSMiddleware) setPreflightHeaders(h http.Header, d corsDecision) {
	h.Set("Access-Control-Allow-Origin", c.allowOrigin(d.origin))
	h.Set("Access-Control-Allow-Methods", strings.Join(c.allowedMethods(), ", "))

	if d.wantHeaders != "" {
		if len(c.config.AllowedHeaders) > 0 && !containsString(c.config.AllowedHeaders, "*") {
			h.Set("Access-Control-Allow-Headers", strings.Join(c.config.AllowedHeaders, ", "))
		} else {
			h.Set("Access-Control-Allow-Headers", d.wantHeaders)
		}
	}

	if c.config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if c.config.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(int(c.config.MaxAge.Seconds())))
	}
}

// setActualRequestHeaders sets headers for actual requests
func (c *CORSMiddleware) setActualRequestHeaders(h http.Header, d corsDecision) {
	h.Set("Access-Control-Allow-Origin", c.allowOrigin(d.origin))

	if c.config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if len(c.config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.config.ExposedHeaders, ", "))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// corsWriter applies the CORS headers right before the response header is sent
type corsWriter struct {
	http.ResponseWriter
	apply   func(http.Header)
	applied bool
}

func (w *corsWriter) ensure() {
	if !w.applied {
		w.applied = true
		w.apply(w.ResponseWriter.Header())
	}
}

func (w *corsWriter) WriteHeader(code int) {
	w.ensure()
	w.ResponseWriter.WriteHeader(code)
}

func (w *corsWriter) Write(b []byte) (int, error) {
	w.ensure()
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *corsWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *corsWriter) Flush() {
	w.ensure()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *corsWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}
