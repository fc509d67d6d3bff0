package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "OPSBUDDY_"

// Service defaults applied to entries that leave the field empty.
const (
	DefaultHealthPath     = "/health"
	DefaultServiceTimeout = 30 * time.Second
)

// Default returns the built-in configuration: the five OpsBuddy backends on
// localhost, a 5-failure / 60s breaker and a 30s health probe interval.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Name:        "OpsBuddy API Gateway",
			Version:     "1.0.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Address:         ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxHeaderBytes:  1048576,
		},
		Proxy: ProxyConfig{
			ConnectTimeout:        5 * time.Second,
			KeepAlive:             30 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			Concurrency: 8,
		},
		Services: []ServiceConfig{
			{Name: "file-service", BaseURL: "http://localhost:8001", PathPrefix: "/api/files", Rewrite: "/files"},
			{Name: "utility-service", BaseURL: "http://localhost:8002", PathPrefix: "/api/utils", Rewrite: "/utils"},
			{Name: "analytics-service", BaseURL: "http://localhost:8003", PathPrefix: "/api/analytics", Rewrite: "/analytics"},
			{Name: "incident-service", BaseURL: "http://localhost:8004", PathPrefix: "/api/incidents", Rewrite: "/incidents"},
			{Name: "timeseries-service", BaseURL: "http://localhost:8004", PathPrefix: "/api/timeseries", Rewrite: "/timeseries"},
		},
		ServicesSource: ServicesSourceConfig{
			Driver: SourceInline,
			Etcd: EtcdSourceConfig{
				Endpoints: []string{"localhost:2379"},
				Key:       "/opsbuddy/gateway/services",
				Timeout:   5 * time.Second,
			},
		},
		CORS: CORSConfig{
			Enabled:          true,
			AllowAllOrigins:  true,
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Response-Time", "X-Circuit-Breaker-State", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: LogFileConfig{
				Path:       "logs/gateway.log",
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "opsbuddy",
			Subsystem: "gateway",
		},
		Events: EventsConfig{
			WebSocket: WebSocketConfig{
				Enabled:        true,
				Path:           "/ws/health",
				PingInterval:   30 * time.Second,
				WriteTimeout:   10 * time.Second,
				MaxConnections: 100,
			},
			Redis: RedisConfig{
				Enabled: false,
				Address: "localhost:6379",
				Channel: "service_health",
				Timeout: 2 * time.Second,
			},
		},
	}
}

// Load loads configuration from file with environment variable overrides.
// An empty configFile yields the defaults plus environment overrides.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(cfg *Config, filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if addr := os.Getenv(EnvPrefix + "SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}

	if logLevel := os.Getenv(EnvPrefix + "LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if logFormat := os.Getenv(EnvPrefix + "LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if v := os.Getenv(EnvPrefix + "BREAKER_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sBREAKER_FAILURE_THRESHOLD %q: %w", EnvPrefix, v, err)
		}
		cfg.CircuitBreaker.FailureThreshold = n
	}
	if v := os.Getenv(EnvPrefix + "BREAKER_RECOVERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sBREAKER_RECOVERY_TIMEOUT %q: %w", EnvPrefix, v, err)
		}
		cfg.CircuitBreaker.RecoveryTimeout = d
	}
	if v := os.Getenv(EnvPrefix + "MONITOR_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sMONITOR_INTERVAL %q: %w", EnvPrefix, v, err)
		}
		cfg.Monitor.Interval = d
	}

	if addr := os.Getenv(EnvPrefix + "REDIS_ADDRESS"); addr != "" {
		cfg.Events.Redis.Address = addr
		cfg.Events.Redis.Enabled = true
	}
	if endpoints := os.Getenv(EnvPrefix + "ETCD_ENDPOINTS"); endpoints != "" {
		cfg.ServicesSource.Etcd.Endpoints = strings.Split(endpoints, ",")
	}

	applyServiceEnv(cfg)
	return nil
}

// applyServiceEnv overrides service base URLs from OPSBUDDY_SERVICE_<NAME>_URL,
// where NAME is the upper-cased service name with dashes turned into underscores.
func applyServiceEnv(cfg *Config) {
	for i := range cfg.Services {
		if v := os.Getenv(ServiceURLEnv(cfg.Services[i].Name)); v != "" {
			cfg.Services[i].BaseURL = v
		}
	}
}

// ServiceURLEnv returns the environment variable overriding a service's base URL.
func ServiceURLEnv(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return EnvPrefix + "SERVICE_" + key + "_URL"
}

// validate validates the configuration and fills per-service defaults
func validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "file" {
		return fmt.Errorf("invalid log output: %s", cfg.Logging.Output)
	}
	if cfg.Logging.Output == "file" && cfg.Logging.File.Path == "" {
		return fmt.Errorf("log file path cannot be empty when output is file")
	}

	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive: %d", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit breaker recovery timeout must be positive: %s", cfg.CircuitBreaker.RecoveryTimeout)
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive: %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Timeout <= 0 {
		return fmt.Errorf("monitor timeout must be positive: %s", cfg.Monitor.Timeout)
	}
	if cfg.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor concurrency must be positive: %d", cfg.Monitor.Concurrency)
	}

	switch cfg.ServicesSource.Driver {
	case "", SourceInline, SourceFile, SourceEtcd:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, cfg.ServicesSource.Driver)
	}

	return validateServices(cfg)
}

func validateServices(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return ErrNoServices
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i := range cfg.Services {
		svc := &cfg.Services[i]

		if svc.Name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidService, i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name)
		}
		seen[svc.Name] = true

		u, err := url.Parse(svc.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s has invalid base_url %q", ErrInvalidService, svc.Name, svc.BaseURL)
		}
		if !strings.HasPrefix(svc.PathPrefix, "/") {
			return fmt.Errorf("%w: %s path_prefix %q must start with /", ErrInvalidService, svc.Name, svc.PathPrefix)
		}
		if svc.Rewrite != "" && !strings.HasPrefix(svc.Rewrite, "/") {
			return fmt.Errorf("%w: %s rewrite %q must start with /", ErrInvalidService, svc.Name, svc.Rewrite)
		}
		if svc.FailureThreshold < 0 {
			return fmt.Errorf("%w: %s failure_threshold must not be negative", ErrInvalidService, svc.Name)
		}
		if svc.RecoveryTimeout < 0 {
			return fmt.Errorf("%w: %s recovery_timeout must not be negative", ErrInvalidService, svc.Name)
		}

		if svc.HealthPath == "" {
			svc.HealthPath = DefaultHealthPath
		}
		if svc.Timeout <= 0 {
			svc.Timeout = DefaultServiceTimeout
		}
	}

	return nil
}
