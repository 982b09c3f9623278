package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"resourcegraph/internal/naming"
	"resourcegraph/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	if strings.TrimSpace(c.Models.Path) == "" {
		result.fail("models.path", "models.path is required", "point it at a YAML file or a directory of model definitions")
	}
	c.API.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.Dialect()
	if err != nil {
		result.fail("database.driver", err.Error(), "valid values are: mysql, postgres, sqlite")
		return
	}

	if dialect.Name == sqlutil.SQLite.Name {
		if d.ConnectionString == "" && strings.TrimSpace(d.Database) == "" {
			result.fail("database.database", "sqlite needs a database file or database.dsn", "")
		}
		if d.TLS.Mode != "" && d.TLS.Mode != "off" {
			result.warn("database.tls.mode", "TLS settings are ignored for sqlite", "")
		}
	} else if d.ConnectionString == "" {
		if d.Port < 1 || d.Port > 65535 {
			result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
		}
		if strings.TrimSpace(d.Host) == "" {
			result.fail("database.host", "host is required when dsn is not set", "")
		}
		if strings.TrimSpace(d.Database) == "" {
			result.fail("database.database", "database name is required when dsn is not set", "")
		}
	} else if dialect.Name == sqlutil.MySQL.Name {
		if _, err := mysql.ParseDSN(d.ConnectionString); err != nil {
			result.fail("database.dsn", fmt.Sprintf("database.dsn is invalid: %v", err), "use user:pass@tcp(host:port)/db")
		}
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file to the CA certificate")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.fail("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (a *APIConfig) validate(result *ValidationResult) {
	if a.DefaultPageSize < 1 {
		result.fail("api.default_page_size", "default_page_size must be at least 1", "")
	}
	if a.MaxPageSize < 0 {
		result.fail("api.max_page_size", "max_page_size cannot be negative", "use 0 for no limit")
	}
	if a.MaxPageSize > 0 && a.DefaultPageSize > a.MaxPageSize {
		result.fail("api.default_page_size",
			fmt.Sprintf("default_page_size %d exceeds max_page_size %d", a.DefaultPageSize, a.MaxPageSize), "")
	}
	if a.LazyWindow < 1 {
		result.fail("api.lazy_window", "lazy_window must be at least 1", "")
	}
	if a.BaseURL != "" {
		if u, err := url.Parse(a.BaseURL); err != nil || (u.Scheme != "" && u.Host == "") {
			result.fail("api.base_url", fmt.Sprintf("invalid base URL %q", a.BaseURL), "use an absolute URL or a path such as /api")
		}
	}
	if a.AllowClientIDs {
		result.warn("api.allow_client_ids", "clients may choose primary keys on create", "")
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("naming.plural_overrides", fmt.Sprintf("override %q -> %q has an empty side", singular, plural), "")
		}
	}
	for plural, singular := range cfg.SingularOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("naming.singular_overrides", fmt.Sprintf("override %q -> %q has an empty side", plural, singular), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio), "")
	}
	if o.PushgatewayURL != "" {
		if u, err := url.Parse(o.PushgatewayURL); err != nil || u.Host == "" {
			result.fail("observability.pushgateway_url", fmt.Sprintf("invalid Pushgateway URL %q", o.PushgatewayURL), "use a full URL such as http://localhost:9091")
		} else if !o.MetricsEnabled {
			result.warn("observability.pushgateway_url", "pushgateway_url is set but metrics are disabled", "set metrics_enabled to push metrics")
		}
	}
	o.OTLP.validate("observability.otlp", result)
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
