package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(Options{Namespace: "test", Subsystem: "gateway"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func labelsOf(metric *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestObserveForward(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveForward("file-service", "GET", 200, "success", 15*time.Millisecond)
	m.ObserveForward("file-service", "GET", 200, "success", 25*time.Millisecond)
	m.ObserveForward("file-service", "POST", 504, "timeout", time.Second)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("file-service", "GET", "200", "success")); got != 2 {
		t.Errorf("requests_total GET 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("file-service", "POST", "504", "timeout")); got != 1 {
		t.Errorf("requests_total POST 504 = %v, want 1", got)
	}

	family := findFamily(t, m, "test_gateway_proxy_request_duration_seconds")
	if family == nil {
		t.Fatal("duration histogram not gathered")
	}
	var samples uint64
	for _, metric := range family.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("histogram samples = %d, want 3", samples)
	}
}

func TestForwardStarted(t *testing.T) {
	m := newTestMetrics(t)

	done1 := m.ForwardStarted("a")
	done2 := m.ForwardStarted("a")
	if got := testutil.ToFloat64(m.inflight.WithLabelValues("a")); got != 2 {
		t.Errorf("inflight = %v, want 2", got)
	}
	done1()
	done2()
	if got := testutil.ToFloat64(m.inflight.WithLabelValues("a")); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}
}

func TestCircuitMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.SetCircuitState("a", "CLOSED")
	m.RecordTransition("a", "CLOSED", "OPEN")
	m.RecordRejection("a", "OPEN")
	m.RecordRejection("a", "OPEN")

	family := findFamily(t, m, "test_gateway_circuit_state")
	if family == nil {
		t.Fatal("circuit_state not gathered")
	}
	active := 0
	for _, metric := range family.GetMetric() {
		labels := labelsOf(metric)
		v := metric.GetGauge().GetValue()
		if v == 1 {
			active++
			if labels["state"] != "OPEN" {
				t.Errorf("active state = %s, want OPEN", labels["state"])
			}
		}
	}
	if active != 1 {
		t.Errorf("active states = %d, want exactly 1", active)
	}

	if got := testutil.ToFloat64(m.circuitTransitions.WithLabelValues("a", "CLOSED", "OPEN")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.circuitRejections.WithLabelValues("a", "OPEN")); got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
}

func TestObserveProbe(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveProbe("a", true, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.serviceUp.WithLabelValues("a")); got != 1 {
		t.Errorf("service_up = %v, want 1", got)
	}

	m.ObserveProbe("a", false, time.Second)
	if got := testutil.ToFloat64(m.serviceUp.WithLabelValues("a")); got != 0 {
		t.Errorf("service_up = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveHTTP("GET", "/health", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_gateway_http_requests_total{method="GET",route="/health",status_code="200"} 1`) {
		t.Errorf("exposition missing http_requests_total sample:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go runtime collector")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.ObserveForward("a", "GET", 200, "success", time.Millisecond)
	m.ForwardStarted("a")()
	m.RecordRejection("a", "OPEN")
	m.SetCircuitState("a", "OPEN")
	m.RecordTransition("a", "CLOSED", "OPEN")
	m.ObserveProbe("a", true, time.Millisecond)
	m.ObserveHTTP("GET", "/", 200)

	if m.Registry() != nil {
		t.Error("Registry() on nil metrics should be nil")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}
