package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout != 60*time.Second {
		t.Errorf("RecoveryTimeout = %s, want 60s", cfg.CircuitBreaker.RecoveryTimeout)
	}
	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("Monitor.Interval = %s, want 30s", cfg.Monitor.Interval)
	}
	if len(cfg.Services) != 5 {
		t.Fatalf("len(Services) = %d, want 5", len(cfg.Services))
	}

	file := cfg.Services[0]
	if file.Name != "file-service" || file.PathPrefix != "/api/files" || file.Rewrite != "/files" {
		t.Errorf("unexpected first service: %+v", file)
	}
	if file.HealthPath != DefaultHealthPath {
		t.Errorf("HealthPath = %q, want %q", file.HealthPath, DefaultHealthPath)
	}
	if file.Timeout != DefaultServiceTimeout {
		t.Errorf("Timeout = %s, want %s", file.Timeout, DefaultServiceTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9000"
circuit_breaker:
  failure_threshold: 3
  recovery_timeout: 10s
monitor:
  interval: 5s
services:
  - name: orders
    base_url: http://orders:8080
    path_prefix: /api/orders
    timeout: 2s
    failure_threshold: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Errorf("Server.Address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want 3", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout != 10*time.Second {
		t.Errorf("RecoveryTimeout = %s, want 10s", cfg.CircuitBreaker.RecoveryTimeout)
	}
	if cfg.Monitor.Interval != 5*time.Second {
		t.Errorf("Monitor.Interval = %s, want 5s", cfg.Monitor.Interval)
	}
	if len(cfg.Services) != 1 {
		t.Fatalf("len(Services) = %d, want 1", len(cfg.Services))
	}

	svc := cfg.Services[0]
	if svc.Timeout != 2*time.Second {
		t.Errorf("Timeout = %s, want 2s", svc.Timeout)
	}
	if svc.FailureThreshold != 2 {
		t.Errorf("service FailureThreshold = %d, want 2", svc.FailureThreshold)
	}
	if svc.HealthPath != DefaultHealthPath {
		t.Errorf("HealthPath = %q, want default", svc.HealthPath)
	}
	// Unset sections keep their defaults.
	if cfg.Monitor.Timeout != 10*time.Second {
		t.Errorf("Monitor.Timeout = %s, want 10s", cfg.Monitor.Timeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPSBUDDY_SERVER_ADDRESS", ":7000")
	t.Setenv("OPSBUDDY_LOG_LEVEL", "DEBUG")
	t.Setenv("OPSBUDDY_BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("OPSBUDDY_BREAKER_RECOVERY_TIMEOUT", "90s")
	t.Setenv("OPSBUDDY_MONITOR_INTERVAL", "15s")
	t.Setenv("OPSBUDDY_REDIS_ADDRESS", "redis:6379")
	t.Setenv("OPSBUDDY_SERVICE_FILE_SERVICE_URL", "http://files.internal:9001")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":7000" {
		t.Errorf("Server.Address = %q, want :7000", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.CircuitBreaker.FailureThreshold != 7 {
		t.Errorf("FailureThreshold = %d, want 7", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout != 90*time.Second {
		t.Errorf("RecoveryTimeout = %s, want 90s", cfg.CircuitBreaker.RecoveryTimeout)
	}
	if cfg.Monitor.Interval != 15*time.Second {
		t.Errorf("Monitor.Interval = %s, want 15s", cfg.Monitor.Interval)
	}
	if !cfg.Events.Redis.Enabled || cfg.Events.Redis.Address != "redis:6379" {
		t.Errorf("Redis = %+v, want enabled at redis:6379", cfg.Events.Redis)
	}
	if cfg.Services[0].BaseURL != "http://files.internal:9001" {
		t.Errorf("file-service BaseURL = %q, want override", cfg.Services[0].BaseURL)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("OPSBUDDY_BREAKER_FAILURE_THRESHOLD", "five")

	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric threshold")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "unparseable yaml",
			content: "services: [",
		},
		{
			name:    "invalid log level",
			content: "logging:\n  level: loud\n",
		},
		{
			name:    "zero threshold",
			content: "circuit_breaker:\n  failure_threshold: 0\n",
		},
		{
			name:    "negative interval",
			content: "monitor:\n  interval: -1s\n",
		},
		{
			name:    "empty services",
			content: "services: []\n",
			wantErr: ErrNoServices,
		},
		{
			name: "duplicate names",
			content: `
services:
  - {name: a, base_url: "http://a:1", path_prefix: /a}
  - {name: a, base_url: "http://b:1", path_prefix: /b}
`,
			wantErr: ErrDuplicateService,
		},
		{
			name:    "invalid base url",
			content: "services:\n  - {name: a, base_url: \"not a url\", path_prefix: /a}\n",
			wantErr: ErrInvalidService,
		},
		{
			name:    "prefix without slash",
			content: "services:\n  - {name: a, base_url: \"http://a:1\", path_prefix: api/a}\n",
			wantErr: ErrInvalidService,
		},
		{
			name:    "unknown source driver",
			content: "services_source:\n  driver: consul\n",
			wantErr: ErrUnsupportedSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoad_OverlappingPrefixesAllowed(t *testing.T) {
	path := writeConfig(t, `
services:
  - {name: a, base_url: "http://a:1", path_prefix: /api}
  - {name: b, base_url: "http://b:1", path_prefix: /api}
`)

	if _, err := Load(path); err != nil {
		t.Errorf("Load() error = %v, overlapping prefixes must load", err)
	}
}

func TestServiceURLEnv(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"file-service", "OPSBUDDY_SERVICE_FILE_SERVICE_URL"},
		{"analytics", "OPSBUDDY_SERVICE_ANALYTICS_URL"},
	}

	for _, tt := range tests {
		if got := ServiceURLEnv(tt.name); got != tt.want {
			t.Errorf("ServiceURLEnv(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

type staticSource struct {
	data []byte
	err  error
}

func (s *staticSource) Get(ctx context.Context) ([]byte, error) { return s.data, s.err }
func (s *staticSource) Close() error                            { return nil }

func TestLoadServices(t *testing.T) {
	tests := []struct {
		name      string
		source    *staticSource
		wantErr   bool
		wantCount int
	}{
		{
			name: "replaces inline services",
			source: &staticSource{data: []byte(`
services:
  - {name: orders, base_url: "http://orders:8080", path_prefix: /api/orders}
`)},
			wantCount: 1,
		},
		{
			name:    "source error",
			source:  &staticSource{err: errors.New("unreachable")},
			wantErr: true,
		},
		{
			name:    "empty document",
			source:  &staticSource{data: []byte("services: []\n")},
			wantErr: true,
		},
		{
			name:    "invalid entry",
			source:  &staticSource{data: []byte("services:\n  - {name: x, base_url: \"\", path_prefix: /x}\n")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := LoadServices(context.Background(), cfg, tt.source)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadServices() error = %v", err)
			}
			if len(cfg.Services) != tt.wantCount {
				t.Errorf("len(Services) = %d, want %d", len(cfg.Services), tt.wantCount)
			}
			if cfg.Services[0].HealthPath != DefaultHealthPath {
				t.Errorf("HealthPath = %q, want default", cfg.Services[0].HealthPath)
			}
		})
	}
}

func TestLoadServices_NilSource(t *testing.T) {
	cfg := Default()
	if err := LoadServices(context.Background(), cfg, nil); err != nil {
		t.Fatalf("LoadServices() error = %v", err)
	}
	if len(cfg.Services) != 5 {
		t.Errorf("len(Services) = %d, want inline defaults", len(cfg.Services))
	}
}

func TestCreateServicesSource(t *testing.T) {
	servicesFile := writeConfig(t, "services: []\n")

	tests := []struct {
		name      string
		source    ServicesSourceConfig
		wantNil   bool
		expectErr bool
	}{
		{name: "inline", source: ServicesSourceConfig{Driver: SourceInline}, wantNil: true},
		{name: "empty driver", source: ServicesSourceConfig{}, wantNil: true},
		{name: "file", source: ServicesSourceConfig{Driver: SourceFile, File: FileSourceConfig{Path: servicesFile}}},
		{name: "file without path", source: ServicesSourceConfig{Driver: SourceFile}, expectErr: true},
		{name: "etcd without key", source: ServicesSourceConfig{Driver: SourceEtcd, Etcd: EtcdSourceConfig{Endpoints: []string{"localhost:2379"}}}, expectErr: true},
		{name: "unknown", source: ServicesSourceConfig{Driver: "zookeeper"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ServicesSource = tt.source

			src, err := CreateServicesSource(cfg)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateServicesSource() error = %v", err)
			}
			if tt.wantNil != (src == nil) {
				t.Errorf("source = %v, wantNil %v", src, tt.wantNil)
			}
			if src != nil {
				src.Close()
			}
		})
	}
}
