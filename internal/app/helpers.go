package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"resourcegraph/internal/config"
	"resourcegraph/internal/dbexec"
	"resourcegraph/internal/logging"
	"resourcegraph/internal/observability"
	"resourcegraph/internal/resource"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqlutil"
)

// InitLogger builds the process logger from cfg and installs it as the slog
// default. With log exports enabled the returned provider must be attached
// to the App so it is flushed on shutdown.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func telemetryConfig(cfg *config.Config) observability.Config {
	otlp := cfg.Observability.OTLP
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("pushgateway_url", cfg.Observability.PushgatewayURL),
	)
	return observability.InitMeterProvider(telemetryConfig(cfg))
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return observability.InitTracerProvider(ctx, telemetryConfig(cfg))
}

// dbSystem returns the semantic-convention attribute of a dialect.
func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect.Name {
	case sqlutil.Postgres.Name:
		return semconv.DBSystemPostgreSQL
	case sqlutil.SQLite.Name:
		return semconv.DBSystemSqlite
	}
	return semconv.DBSystemMySQL
}

// connectDB opens the pool for the configured driver. The dialect name is
// also the registered database/sql driver name.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(dialect.Name, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	system := dbSystem(dialect)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open(dialect.Name, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("driver", cfg.Database.Driver),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval

	// If timeout is 0, try once and fail immediately
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)

		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildService(cfg *config.Config, logger *logging.Logger, registry *schema.Registry, db *sql.DB, metricsEnabled bool) (*resource.Service, error) {
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}

	var metrics *observability.OperationMetrics
	if metricsEnabled {
		if metrics, err = observability.InitOperationMetrics(); err != nil {
			return nil, err
		}
	}

	return resource.New(registry, dbexec.NewStandardExecutor(db), dialect, resource.Options{
		BaseURL:         cfg.API.BaseURL,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
		LazyWindow:      cfg.API.LazyWindow,
		AllowClientIDs:  cfg.API.AllowClientIDs,
	}, metrics, logger), nil
}
