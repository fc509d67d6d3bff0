package config

import "time"

// Config represents the complete gateway configuration structure
type Config struct {
	Gateway        GatewayConfig        `yaml:"gateway"`
	Server         ServerConfig         `yaml:"server"`
	Proxy          ProxyConfig          `yaml:"proxy"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Monitor        MonitorConfig        `yaml:"monitor"`
	Services       []ServiceConfig      `yaml:"services"`
	ServicesSource ServicesSourceConfig `yaml:"services_source"`
	CORS           CORSConfig           `yaml:"cors"`
	Logging        LoggingConfig        `yaml:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Events         EventsConfig         `yaml:"events"`
}

// GatewayConfig identifies the running gateway in info and status documents
type GatewayConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	H2C             bool          `yaml:"h2c"`
}

// ProxyConfig represents the shared upstream transport configuration
type ProxyConfig struct {
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	KeepAlive             time.Duration `yaml:"keep_alive"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds the breaker defaults applied to every service
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// MonitorConfig represents active health probing configuration
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// ServiceConfig describes one backend service owned by a path prefix.
// Zero-valued FailureThreshold and RecoveryTimeout fall back to the circuit_breaker defaults.
type ServiceConfig struct {
	Name             string        `yaml:"name"`
	BaseURL          string        `yaml:"base_url"`
	PathPrefix       string        `yaml:"path_prefix"`
	Rewrite          string        `yaml:"rewrite"`
	HealthPath       string        `yaml:"health_path"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// ServicesSourceConfig selects where the service list comes from
type ServicesSourceConfig struct {
	Driver string           `yaml:"driver"` // inline, file or etcd
	File   FileSourceConfig `yaml:"file"`
	Etcd   EtcdSourceConfig `yaml:"etcd"`
}

// FileSourceConfig represents file configuration source settings
type FileSourceConfig struct {
	Path string `yaml:"path"`
}

// EtcdSourceConfig represents etcd configuration source settings
type EtcdSourceConfig struct {
	Endpoints []string      `yaml:"endpoints"` // Etcd endpoints
	Key       string        `yaml:"key"`       // Key holding the services YAML document
	Timeout   time.Duration `yaml:"timeout"`   // Connection timeout
	Username  string        `yaml:"username"`  // Authentication username
	Password  string        `yaml:"password"`  // Authentication password
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers"`
	ExposedHeaders   []string      `yaml:"exposed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"` // json or console
	Output string        `yaml:"output"` // stdout or file
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig defines log file rotation settings
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`    // megabytes before rotation
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	MaxAge     int    `yaml:"max_age"`     // days to retain rotated files
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// EventsConfig represents health and circuit event publishing
type EventsConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	Redis     RedisConfig     `yaml:"redis"`
}

// WebSocketConfig represents the dashboard event stream configuration
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxConnections int           `yaml:"max_connections"`
}

// RedisConfig represents the Redis pub/sub publisher configuration
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	Timeout  time.Duration `yaml:"timeout"`
}
