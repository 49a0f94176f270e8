// Package app assembles configuration, observability, the entity registry
// and the shape catalog into a ready validation service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"queryshape/internal/config"
	"queryshape/internal/logging"
	"queryshape/internal/observability"
	"queryshape/internal/schema"
	"queryshape/internal/shape"
	"queryshape/internal/validation"
)

type statsRegistration interface{ Unregister() error }

// App owns runtime resources for one queryshape process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	metrics        *observability.ValidationMetrics
	tracerProvider *observability.TracerProvider

	// connect opens the database for the database schema source.
	connect func(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*sql.DB, statsRegistration, error)
	db      *sql.DB

	registry *schema.Registry
	catalog  *shape.Catalog
	service  *validation.Service

	closers []closer

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
	return &App{
		cfg:     cfg,
		logger:  logger,
		connect: connectDB,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Service returns the validation service. It is nil before Init.
func (a *App) Service() *validation.Service {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.service
}

// Catalog returns the shape catalog. It is nil before Init.
func (a *App) Catalog() *shape.Catalog {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.catalog
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger {
	return a.logger
}
