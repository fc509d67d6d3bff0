// Package registry maps request paths to the backend services that own them.
package registry

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// ServiceDescriptor describes one backend. It is immutable once the registry is built.
type ServiceDescriptor struct {
	Name       string
	BaseURL    string
	PathPrefix string
	Rewrite    string
	HealthPath string
	Timeout    time.Duration

	// Breaker overrides; zero means use the gateway default.
	FailureThreshold int
	RecoveryTimeout  time.Duration

	base          *url.URL
	escapedPrefix string
}

// Registry is a static, ordered set of service descriptors.
// All methods are safe for concurrent use because nothing mutates after New.
type Registry struct {
	services []ServiceDescriptor
	byName   map[string]int
}

// New builds a registry from configuration, preserving registration order.
// Overlapping prefixes are accepted and logged; the first registered service wins ties.
func New(services []config.ServiceConfig, logger log.Logger) (*Registry, error) {
	if len(services) == 0 {
		return nil, ErrNoServices
	}
	if logger == nil {
		logger = log.NewNop()
	}

	r := &Registry{
		services: make([]ServiceDescriptor, 0, len(services)),
		byName:   make(map[string]int, len(services)),
	}
	prefixOwner := make(map[string]string, len(services))

	for _, svc := range services {
		desc, err := newDescriptor(svc)
		if err != nil {
			return nil, err
		}
		if _, exists := r.byName[desc.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateService, desc.Name)
		}

		if owner, exists := prefixOwner[desc.PathPrefix]; exists {
			logger.Warn("duplicate path prefix, first registered service wins",
				log.String(log.FieldPrefix, desc.PathPrefix),
				log.String(log.FieldService, desc.Name),
				log.String("winner", owner),
			)
		} else {
			prefixOwner[desc.PathPrefix] = desc.Name
		}

		r.byName[desc.Name] = len(r.services)
		r.services = append(r.services, desc)
	}

	return r, nil
}

func newDescriptor(svc config.ServiceConfig) (ServiceDescriptor, error) {
	if svc.Name == "" {
		return ServiceDescriptor{}, fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}

	base, err := url.Parse(svc.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ServiceDescriptor{}, fmt.Errorf("%w: %s base URL %q", ErrInvalidDescriptor, svc.Name, svc.BaseURL)
	}
	if !strings.HasPrefix(svc.PathPrefix, "/") {
		return ServiceDescriptor{}, fmt.Errorf("%w: %s path prefix %q", ErrInvalidDescriptor, svc.Name, svc.PathPrefix)
	}

	healthPath := svc.HealthPath
	if healthPath == "" {
		healthPath = config.DefaultHealthPath
	}
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = config.DefaultServiceTimeout
	}

	prefix := normalizePrefix(svc.PathPrefix)

	return ServiceDescriptor{
		Name:             svc.Name,
		BaseURL:          strings.TrimRight(svc.BaseURL, "/"),
		PathPrefix:       prefix,
		Rewrite:          strings.TrimRight(svc.Rewrite, "/"),
		HealthPath:       healthPath,
		Timeout:          timeout,
		FailureThreshold: svc.FailureThreshold,
		RecoveryTimeout:  svc.RecoveryTimeout,
		base:             base,
		escapedPrefix:    (&url.URL{Path: prefix}).EscapedPath(),
	}, nil
}

// normalizePrefix drops a trailing slash so "/api/files/" and "/api/files" behave alike.
func normalizePrefix(prefix string) string {
	if prefix == "/" {
		return prefix
	}
	return strings.TrimRight(prefix, "/")
}

// Resolve returns the service owning path: the longest matching prefix,
// with ties going to the service registered first. path is in escaped form
// (url.URL.EscapedPath), the same form TargetURL rewrites, so an encoded
// slash such as "/api%2Ffiles" never matches "/api/files".
func (r *Registry) Resolve(path string) (ServiceDescriptor, bool) {
	best := -1
	for i := range r.services {
		prefix := r.services[i].escapedPrefix
		if !matchPrefix(path, prefix) {
			continue
		}
		if best < 0 || len(prefix) > len(r.services[best].escapedPrefix) {
			best = i
		}
	}
	if best < 0 {
		return ServiceDescriptor{}, false
	}
	return r.services[best], true
}

// matchPrefix reports whether prefix covers path on a segment boundary:
// "/api/files" matches "/api/files" and "/api/files/x" but not "/api/filesystem".
func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (ServiceDescriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ServiceDescriptor{}, false
	}
	return r.services[i], true
}

// Services returns all descriptors in registration order.
func (r *Registry) Services() []ServiceDescriptor {
	out := make([]ServiceDescriptor, len(r.services))
	copy(out, r.services)
	return out
}

// Names returns the service names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.services))
	for i := range r.services {
		names[i] = r.services[i].Name
	}
	return names
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.services)
}

// TargetURL maps an inbound request URL onto the backend: the matched prefix
// is replaced by Rewrite, the remainder is joined onto the base URL path and
// the raw query is carried over unchanged.
func (d ServiceDescriptor) TargetURL(in *url.URL) *url.URL {
	out := *d.base
	out.User = nil
	out.Fragment = ""
	out.RawQuery = in.RawQuery

	rest := strings.TrimPrefix(in.EscapedPath(), d.escapedPrefix)
	if d.PathPrefix == "/" {
		rest = "/" + rest
	}

	escaped := joinURLPath(d.base.EscapedPath(), d.Rewrite+rest)
	if p, err := url.PathUnescape(escaped); err == nil {
		out.Path = p
		out.RawPath = escaped
	} else {
		out.Path = escaped
		out.RawPath = ""
	}
	return &out
}

// HealthURL returns the absolute URL probed by the health monitor.
func (d ServiceDescriptor) HealthURL() string {
	out := *d.base
	out.RawQuery = ""
	out.Fragment = ""
	out.Path = joinURLPath(d.base.Path, d.HealthPath)
	out.RawPath = ""
	return out.String()
}

func joinURLPath(a, b string) string {
	if b == "" {
		b = "/"
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
