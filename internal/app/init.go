package app

import (
	"context"
	"fmt"
	"log/slog"

	"resourcegraph/internal/schema"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	registry, err := schema.LoadWithNaming(a.cfg.Models.Path, a.cfg.Naming)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	a.logger.Info("models loaded",
		slog.String("path", a.cfg.Models.Path),
		slog.Int("count", len(registry.Models())),
	)

	meterProvider, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
		if url := a.cfg.Observability.PushgatewayURL; url != "" {
			cleanup.push("metrics push", func(shutdownCtx context.Context) error {
				return meterProvider.Push(shutdownCtx, url, a.cfg.Observability.ServiceName)
			})
		}
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to database",
		slog.String("driver", a.cfg.Database.Driver),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.cfg.Database.Database),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	service, err := buildService(a.cfg, a.logger, registry, db, meterProvider != nil)
	if err != nil {
		return fmt.Errorf("failed to initialize resource service: %w", err)
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.registry = registry
	a.service = service
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
