package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"queryshape/internal/config"
	"queryshape/internal/naming"
	"queryshape/internal/shape"
	"queryshape/internal/validation"
)

// Init loads the registry, builds the catalog and wires observability. It
// is idempotent.
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

	var closers []closer
	success := false
	defer func() {
		if !success {
			_ = a.release(context.Background(), closers)
		}
	}()

	if a.loggerProvider != nil {
		closers = append(closers, closer{"logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		}})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		closers = append(closers, closer{"meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		}})
		// Released before the provider shuts down.
		if path := a.cfg.Observability.MetricsFile; path != "" {
			closers = append(closers, closer{"metrics textfile", func(context.Context) error {
				return meterProvider.WriteTextfile(path)
			}})
		}
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		closers = append(closers, closer{"tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		}})
	}

	namer := naming.New(a.cfg.Naming, a.logger.Logger)

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, closer{"database", closeDB})
	}

	source := a.cfg.Schema.Source
	started := time.Now()
	registry, err := loadRegistry(ctx, a.cfg, a.logger, db, namer)
	if err != nil {
		metrics.RecordCatalogBuild(ctx, source, time.Since(started), 0, err)
		return fmt.Errorf("failed to load %s schema: %w", source, err)
	}
	a.logger.Info("entity registry loaded",
		slog.String("source", source),
		slog.Any("entities", registry.Names()),
	)

	catalog, err := shape.NewCatalog(ctx, registry, shape.WithNamer(namer))
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordCatalogBuild(ctx, source, elapsed, 0, err)
		return fmt.Errorf("failed to build shape catalog: %w", err)
	}
	if a.cfg.Validation.WarmCatalog {
		catalog.Warm()
	}
	shapes := len(catalog.ShapeNames())
	metrics.RecordCatalogBuild(ctx, source, elapsed, shapes, nil)
	a.logger.Info("shape catalog built",
		slog.Int("shapes", shapes),
		slog.Int("validators", len(catalog.Validators())),
		slog.Duration("duration", elapsed),
		slog.Bool("warm", a.cfg.Validation.WarmCatalog),
	)

	service := validation.NewService(catalog, validation.WithMetrics(metrics))

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.registry = registry
	a.catalog = catalog
	a.service = service
	a.closers = closers
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

// openDatabase connects only for the database schema source.
func (a *App) openDatabase(ctx context.Context) (*sql.DB, func(context.Context) error, error) {
	if a.cfg.Schema.Source != config.SourceDatabase {
		return nil, nil, nil
	}
	name, err := a.cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve database configuration: %w", err)
	}
	a.logger.Info("connecting to database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", name),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, stats, err := a.connect(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, func(context.Context) error {
		if stats != nil {
			if err := stats.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	}, nil
}

// closer releases one resource acquired by Init.
type closer struct {
	component string
	close     func(context.Context) error
}

// release closes resources newest first. Every failure is logged and the
// failures are returned joined.
func (a *App) release(ctx context.Context, closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		a.logger.Debug("releasing", slog.String("component", c.component))
		if err := c.close(ctx); err != nil {
			a.logger.Warn("release failed",
				slog.String("component", c.component),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.component, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes telemetry, writes the metrics textfile and closes the
// database. Only the first call releases anything.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		closers := a.closers
		a.closers = nil
		a.initialized = false
		a.stateMu.Unlock()

		err = a.release(ctx, closers)
	})
	return err
}
