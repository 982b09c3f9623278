// Package app owns the runtime resources behind the resource service: the
// telemetry providers, the database pool, the model registry and the service
// built over them.
package app

import (
	"database/sql"
	"fmt"
	"sync"

	"resourcegraph/internal/config"
	"resourcegraph/internal/logging"
	"resourcegraph/internal/observability"
	"resourcegraph/internal/resource"
	"resourcegraph/internal/schema"
)

// App owns runtime resources for one process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	registry *schema.Registry
	service  *resource.Service

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Service returns the resource service. It is nil until Init succeeds.
func (a *App) Service() *resource.Service {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.service
}

// Registry returns the loaded model registry. It is nil until Init succeeds.
func (a *App) Registry() *schema.Registry {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.registry
}
