package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// RESGRAPH_DATABASE_DRIVER.
const EnvPrefix = "RESGRAPH"

// ConfigFlag names the flag holding an explicit config file path.
const ConfigFlag = "config"

// Load loads configuration with the following precedence:
// 1. Command line flags that were explicitly set on fs
// 2. Environment variables (a .env file in the working directory is read first)
// 3. Config file
// 4. Default values
//
// fs may be nil, in which case only env, file and defaults apply.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// A missing .env is normal; real environment variables win over it.
	_ = godotenv.Load(".env")

	var cfgPath string
	if fs != nil {
		cfgPath, _ = fs.GetString(ConfigFlag)
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("resourcegraph")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/resourcegraph/")
		v.AddConfigPath("$HOME/.resourcegraph")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys: dot + snake_case
	// Env vars: RESGRAPH_DATABASE_POOL_MAX_OPEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		bindChangedFlags(v, fs)
	}
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetInt("database.port") == 0 {
		v.Set("database.port", defaultPort(v.GetString("database.driver")))
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlags copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == ConfigFlag || !strings.Contains(f.Name, ".") {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers the configuration flags on fs using canonical
// snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringP(ConfigFlag, "c", "", "Config file path")

	fs.String("database.driver", "", "Database driver (mysql, postgres, sqlite)")
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.String("database.database", "", "Database name")
	fs.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")

	fs.String("models.path", "", "Model definition file or directory")

	fs.String("api.base_url", "", "Base URL prefixed to every link")
	fs.Int("api.default_page_size", 0, "Page size when a list gives none")
	fs.Int("api.max_page_size", 0, "Largest accepted page size (0 = no limit)")
	fs.Int("api.lazy_window", 0, "Page size of expanded lazy relations")
	fs.Bool("api.allow_client_ids", false, "Accept client-generated ids on create")

	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.String("observability.pushgateway_url", "", "Prometheus Pushgateway URL")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint (e.g., localhost:4317)")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "resourcegraph")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.database", "resourcegraph")
	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.server_name", "")
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 0)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)

	v.SetDefault("models.path", "models")

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.default_page_size", 20)
	v.SetDefault("api.max_page_size", 100)
	v.SetDefault("api.lazy_window", 10)
	v.SetDefault("api.allow_client_ids", false)

	v.SetDefault("observability.service_name", "resourcegraph")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.pushgateway_url", "")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

func defaultPort(driver string) int {
	switch driver {
	case DriverPostgres:
		return 5432
	case DriverSQLite:
		return 0
	}
	return 3306
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, key := range []string{"database.dsn_file", "database.password_file"} {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}
