package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/registry"
)

type outcome struct {
	service string
	success bool
}

type recordingReporter struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (r *recordingReporter) ReportOutcome(service string, success bool) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome{service, success})
	r.mu.Unlock()
}

func (r *recordingReporter) For(service string) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, o := range r.outcomes {
		if o.service == service {
			out = append(out, o.success)
		}
	}
	return out
}

func newServices(t *testing.T, urls map[string]string, order ...string) []registry.ServiceDescriptor {
	t.Helper()
	var cfgs []config.ServiceConfig
	for _, name := range order {
		cfgs = append(cfgs, config.ServiceConfig{Name: name, BaseURL: urls[name], PathPrefix: "/api/" + name})
	}
	r, err := registry.New(cfgs, nil)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	return r.Services()
}

func statusServer(code int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
}

func closedServerURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestMonitor_InitialSnapshotsUnknown(t *testing.T) {
	services := newServices(t, map[string]string{"a": "http://a:1", "b": "http://b:1"}, "a", "b")
	m := New(services, nil, Config{})

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("len(Snapshots()) = %d, want 2", len(snaps))
	}
	for _, s := range snaps {
		if s.Status != StatusUnknown || s.Reachable || s.Checked() {
			t.Errorf("initial snapshot %+v, want unknown and unchecked", s)
		}
	}
	if snaps[0].URL != "http://a:1/health" {
		t.Errorf("URL = %q, want http://a:1/health", snaps[0].URL)
	}

	status, unhealthy := Aggregate(snaps)
	if status != AggregateDegraded || len(unhealthy) != 2 {
		t.Errorf("Aggregate() = %s %v, want degraded with both services", status, unhealthy)
	}
}

func TestMonitor_CheckAll(t *testing.T) {
	healthy := statusServer(http.StatusOK, `{"status":"healthy","service":"file-service"}`)
	defer healthy.Close()
	failing := statusServer(http.StatusInternalServerError, `{"status":"error"}`)
	defer failing.Close()

	services := newServices(t, map[string]string{
		"healthy": healthy.URL,
		"failing": failing.URL,
		"down":    closedServerURL(),
	}, "healthy", "failing", "down")

	reporter := &recordingReporter{}
	m := New(services, reporter, Config{Timeout: 2 * time.Second})

	snaps := m.CheckAll(context.Background())
	if len(snaps) != 3 {
		t.Fatalf("len(CheckAll()) = %d, want 3", len(snaps))
	}

	tests := []struct {
		service       string
		reachable     bool
		status        string
		statusCode    int
		backendStatus string
		errContains   string
	}{
		{"healthy", true, StatusHealthy, 200, "healthy", ""},
		{"failing", false, StatusUnhealthy, 500, "error", "HTTP 500"},
		{"down", false, StatusUnhealthy, 0, "", ErrProbeUnreachable.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			s, ok := m.Snapshot(tt.service)
			if !ok {
				t.Fatalf("Snapshot(%s) not found", tt.service)
			}
			if s.Reachable != tt.reachable || s.Status != tt.status {
				t.Errorf("snapshot = %+v, want reachable=%v status=%s", s, tt.reachable, tt.status)
			}
			if s.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", s.StatusCode, tt.statusCode)
			}
			if s.BackendStatus != tt.backendStatus {
				t.Errorf("BackendStatus = %q, want %q", s.BackendStatus, tt.backendStatus)
			}
			if tt.errContains == "" && s.LastError != "" {
				t.Errorf("LastError = %q, want empty", s.LastError)
			}
			if tt.errContains != "" && !strings.Contains(s.LastError, tt.errContains) {
				t.Errorf("LastError = %q, want it to contain %q", s.LastError, tt.errContains)
			}
			if !s.Checked() {
				t.Error("CheckedAt not set")
			}

			got := reporter.For(tt.service)
			if len(got) != 1 || got[0] != tt.reachable {
				t.Errorf("reported outcomes = %v, want [%v]", got, tt.reachable)
			}
		})
	}

	status, unhealthy := Aggregate(snaps)
	if status != AggregateDegraded {
		t.Errorf("Aggregate status = %s, want degraded", status)
	}
	if len(unhealthy) != 2 || unhealthy[0] != "failing" || unhealthy[1] != "down" {
		t.Errorf("unhealthy = %v, want [failing down]", unhealthy)
	}
}

func TestMonitor_Probe500ReportsFailureWithoutTraffic(t *testing.T) {
	backend := statusServer(http.StatusInternalServerError, `{"status":"unhealthy"}`)
	defer backend.Close()

	services := newServices(t, map[string]string{"file-service": backend.URL}, "file-service")
	reporter := &recordingReporter{}
	m := New(services, reporter, Config{})

	m.CheckAll(context.Background())

	s, _ := m.Snapshot("file-service")
	if s.Reachable {
		t.Error("Reachable = true for HTTP 500")
	}
	if got := reporter.For("file-service"); len(got) != 1 || got[0] {
		t.Errorf("reported = %v, want one failure", got)
	}
}

func TestMonitor_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	services := newServices(t, map[string]string{"slow": slow.URL}, "slow")
	reporter := &recordingReporter{}
	m := New(services, reporter, Config{Timeout: 50 * time.Millisecond})

	m.CheckAll(context.Background())

	s, _ := m.Snapshot("slow")
	if s.Reachable {
		t.Fatal("Reachable = true for a probe that timed out")
	}
	if !strings.Contains(s.LastError, ErrProbeTimeout.Error()) {
		t.Errorf("LastError = %q, want timeout", s.LastError)
	}
	if got := reporter.For("slow"); len(got) != 1 || got[0] {
		t.Errorf("reported = %v, want one failure", got)
	}
}

func TestMonitor_BodyFailsAfterHeaders(t *testing.T) {
	writePartial := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"sta`))
		w.(http.Flusher).Flush()
	}

	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantError error
	}{
		{
			name: "body stalls past the timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writePartial(w)
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantError: ErrProbeTimeout,
		},
		{
			name: "connection dropped mid-body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writePartial(w)
				conn, _, err := http.NewResponseController(w).Hijack()
				if err != nil {
					return
				}
				conn.Close()
			},
			wantError: ErrProbeUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			services := newServices(t, map[string]string{"stalled": srv.URL}, "stalled")
			reporter := &recordingReporter{}
			m := New(services, reporter, Config{Timeout: 100 * time.Millisecond})

			m.CheckAll(context.Background())

			s, _ := m.Snapshot("stalled")
			if s.Reachable {
				t.Fatal("Reachable = true for a probe whose body failed")
			}
			if s.Status != StatusUnhealthy {
				t.Errorf("Status = %q, want %q", s.Status, StatusUnhealthy)
			}
			if !strings.Contains(s.LastError, tt.wantError.Error()) {
				t.Errorf("LastError = %q, want %v", s.LastError, tt.wantError)
			}
			if got := reporter.For("stalled"); len(got) != 1 || got[0] {
				t.Errorf("reported = %v, want one failure", got)
			}
		})
	}
}

func TestMonitor_SlowProbeDoesNotDelayOthers(t *testing.T) {
	const timeout = 300 * time.Millisecond

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	fast := statusServer(http.StatusOK, `{"status":"healthy"}`)
	defer fast.Close()

	services := newServices(t, map[string]string{
		"slow":  slow.URL,
		"fast1": fast.URL,
		"fast2": fast.URL,
		"fast3": fast.URL,
	}, "slow", "fast1", "fast2", "fast3")

	m := New(services, nil, Config{Timeout: timeout, Concurrency: 4})

	start := time.Now()
	m.CheckAll(context.Background())
	elapsed := time.Since(start)

	if elapsed >= 2*timeout {
		t.Errorf("cycle took %s, want well under %s", elapsed, 2*timeout)
	}
	for _, name := range []string{"fast1", "fast2", "fast3"} {
		s, _ := m.Snapshot(name)
		if !s.Reachable {
			t.Errorf("%s unreachable: %s", name, s.LastError)
		}
		if s.Latency >= timeout {
			t.Errorf("%s latency %s, want below the slow probe timeout", name, s.Latency)
		}
	}
}

func TestMonitor_Listeners(t *testing.T) {
	backend := statusServer(http.StatusOK, `{"status":"healthy"}`)
	defer backend.Close()

	services := newServices(t, map[string]string{"a": backend.URL, "b": backend.URL}, "a", "b")
	m := New(services, nil, Config{})

	var mu sync.Mutex
	seen := map[string]int{}
	m.OnSnapshot(func(s Snapshot) {
		mu.Lock()
		seen[s.Service]++
		mu.Unlock()
	})

	m.CheckAll(context.Background())
	m.CheckAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != 2 || seen["b"] != 2 {
		t.Errorf("listener calls = %v, want 2 per service", seen)
	}
}

func TestMonitor_CancelledContextRecordsNothing(t *testing.T) {
	backend := statusServer(http.StatusOK, `{"status":"healthy"}`)
	defer backend.Close()

	services := newServices(t, map[string]string{"a": backend.URL}, "a")
	reporter := &recordingReporter{}
	m := New(services, reporter, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.CheckAll(ctx)

	if got := reporter.For("a"); len(got) != 0 {
		t.Errorf("reported = %v, want nothing after cancellation", got)
	}
	if s, _ := m.Snapshot("a"); s.Checked() {
		t.Error("snapshot replaced after cancellation")
	}
}

func TestMonitor_Run(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer backend.Close()

	services := newServices(t, map[string]string{"a": backend.URL}, "a")
	m := New(services, nil, Config{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for hits.Load() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("only %d probes before deadline", hits.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name          string
		snapshots     []Snapshot
		wantStatus    string
		wantUnhealthy []string
	}{
		{
			name:       "all reachable",
			snapshots:  []Snapshot{{Service: "a", Reachable: true}, {Service: "b", Reachable: true}},
			wantStatus: AggregateHealthy,
		},
		{
			name:          "one down",
			snapshots:     []Snapshot{{Service: "a", Reachable: true}, {Service: "b"}},
			wantStatus:    AggregateDegraded,
			wantUnhealthy: []string{"b"},
		},
		{
			name:       "empty",
			wantStatus: AggregateHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, unhealthy := Aggregate(tt.snapshots)
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if len(unhealthy) != len(tt.wantUnhealthy) {
				t.Fatalf("unhealthy = %v, want %v", unhealthy, tt.wantUnhealthy)
			}
			for i := range unhealthy {
				if unhealthy[i] != tt.wantUnhealthy[i] {
					t.Errorf("unhealthy[%d] = %s, want %s", i, unhealthy[i], tt.wantUnhealthy[i])
				}
			}
		})
	}
}
