package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for validation metrics.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// ValidationMetrics holds the instruments recorded around validator runs
// and catalog builds.
type ValidationMetrics struct {
	validations       metric.Int64Counter
	issues            metric.Int64Counter
	duration          metric.Float64Histogram
	catalogBuilds     metric.Int64Counter
	catalogBuildTime  metric.Float64Histogram
	catalogShapeCount metric.Int64Gauge
}

// InitValidationMetrics creates the instruments on the global meter provider.
func InitValidationMetrics() (*ValidationMetrics, error) {
	return NewValidationMetrics(otel.Meter("queryshape"))
}

// NewValidationMetrics creates the instruments on the given meter.
func NewValidationMetrics(meter metric.Meter) (*ValidationMetrics, error) {
	validations, err := meter.Int64Counter(
		"queryshape.validations",
		metric.WithDescription("Number of validator runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation counter: %w", err)
	}

	issues, err := meter.Int64Counter(
		"queryshape.validation.issues",
		metric.WithDescription("Number of validation issues by code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation issue counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"queryshape.validation.duration",
		metric.WithDescription("Duration of validator runs in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	catalogBuilds, err := meter.Int64Counter(
		"queryshape.catalog.builds",
		metric.WithDescription("Number of catalog builds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog build counter: %w", err)
	}

	catalogBuildTime, err := meter.Float64Histogram(
		"queryshape.catalog.build.duration",
		metric.WithDescription("Duration of catalog builds in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog build histogram: %w", err)
	}

	catalogShapeCount, err := meter.Int64Gauge(
		"queryshape.catalog.shapes",
		metric.WithDescription("Number of named shapes in the last built catalog"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog shape gauge: %w", err)
	}

	return &ValidationMetrics{
		validations:       validations,
		issues:            issues,
		duration:          duration,
		catalogBuilds:     catalogBuilds,
		catalogBuildTime:  catalogBuildTime,
		catalogShapeCount: catalogShapeCount,
	}, nil
}

// RecordValidation records one validator run. issueCodes lists the code of
// every reported issue and is empty for a valid payload.
func (m *ValidationMetrics) RecordValidation(ctx context.Context, validator, entity, operation, outcome string, elapsed time.Duration, issueCodes []string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("validator", validator),
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.validations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

	counts := make(map[string]int64, len(issueCodes))
	for _, code := range issueCodes {
		counts[code]++
	}
	for code, n := range counts {
		m.issues.Add(ctx, n, metric.WithAttributes(
			attribute.String("validator", validator),
			attribute.String("code", code),
		))
	}
}

// RecordCatalogBuild records a catalog build for the given schema source.
func (m *ValidationMetrics) RecordCatalogBuild(ctx context.Context, source string, elapsed time.Duration, shapes int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)
	m.catalogBuilds.Add(ctx, 1, attrs)
	m.catalogBuildTime.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if err == nil {
		m.catalogShapeCount.Record(ctx, int64(shapes), metric.WithAttributes(attribute.String("source", source)))
	}
}
