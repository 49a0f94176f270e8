package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"queryshape/internal/config"
	"queryshape/internal/logging"
	"queryshape/internal/models"
	"queryshape/internal/naming"
	"queryshape/internal/observability"
	"queryshape/internal/schema"
	"queryshape/internal/schema/introspect"
	"queryshape/internal/schema/schemafile"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it fans out to.
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

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
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
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ValidationMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, err
	}
	metrics, err := observability.InitValidationMetrics()
	if err != nil {
		_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}

	logger.Debug("OpenTelemetry metrics initialized",
		slog.String("metrics_file", cfg.Observability.MetricsFile),
	)
	return meterProvider, metrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(ctx, observabilityConfig(cfg, tracesConfig))
}

func connectDB(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*sql.DB, statsRegistration, error) {
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	var stats statsRegistration
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		}
		db, err = otelsql.Open("mysql", dsn, opts...)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Observability.MetricsEnabled {
			stats, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}
	} else {
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
	}

	// introspection runs a handful of sequential queries
	db.SetMaxOpenConns(2)

	pingCtx := ctx
	if timeout := cfg.Database.ConnectTimeout; timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if stats != nil {
			_ = stats.Unregister()
		}
		return nil, nil, fmt.Errorf("database not available: %w", err)
	}
	return db, stats, nil
}

func loadRegistry(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, namer *naming.Namer) (*schema.Registry, error) {
	switch cfg.Schema.Source {
	case config.SourceBuiltin:
		return models.Registry(ctx)
	case config.SourceFile:
		data, err := config.ReadSource(cfg.Schema.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %q: %w", cfg.Schema.File, err)
		}
		return schemafile.Load(ctx, data)
	case config.SourceDatabase:
		if db == nil {
			return nil, fmt.Errorf("database source requires a connection")
		}
		name, err := cfg.Database.EffectiveDatabaseName()
		if err != nil {
			return nil, err
		}
		return introspect.Load(ctx, db, introspect.Options{
			Database:      name,
			IncludeTables: cfg.Database.IncludeTables,
			Namer:         namer,
			Logger:        logger.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown schema source %q", cfg.Schema.Source)
	}
}
