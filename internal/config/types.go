package config

import (
	"time"

	"resourcegraph/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Models        ModelsConfig        `mapstructure:"models"`
	API           APIConfig           `mapstructure:"api"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// ModelsConfig locates the model definition files.
type ModelsConfig struct {
	// Path is a YAML file or a directory of *.yaml/*.yml files.
	Path string `mapstructure:"path"`
}

// APIConfig holds resource API parameters.
type APIConfig struct {
	// BaseURL prefixes every link in rendered documents.
	BaseURL         string `mapstructure:"base_url"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	// MaxPageSize rejects larger page sizes; 0 disables the cap.
	MaxPageSize int `mapstructure:"max_page_size"`
	// LazyWindow is the page size used when a lazy relation is expanded.
	LazyWindow     int  `mapstructure:"lazy_window"`
	AllowClientIDs bool `mapstructure:"allow_client_ids"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for MySQL connections.
type DatabaseTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca, verify-full.
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver selects the SQL dialect and database/sql driver:
	// mysql, postgres or sqlite.
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete driver-specific DSN. When set it
	// overrides the discrete fields below. For sqlite it is the file path or
	// a file: URI.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// "@-" reads it from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
	Database     string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	ServiceVersion   string  `mapstructure:"service_version"`
	Environment      string  `mapstructure:"environment"`
	MetricsEnabled   bool    `mapstructure:"metrics_enabled"`
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
	// PushgatewayURL, when set, receives the collected metrics once a
	// command finishes.
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
	Logging        LoggingConfig `mapstructure:"logging"`

	OTLP OTLPConfig `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}
