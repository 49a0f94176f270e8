// Package validation runs catalog validators with tracing, metrics and
// debug logging around each call.
package validation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"queryshape/internal/logging"
	"queryshape/internal/observability"
	"queryshape/internal/shape"
)

// Service validates operation arguments against a built catalog. It is safe
// for concurrent use.
type Service struct {
	catalog *shape.Catalog
	metrics *observability.ValidationMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records every run on m.
func WithMetrics(m *observability.ValidationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService wraps a catalog.
func NewService(catalog *shape.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		tracer:  otel.Tracer("queryshape/validation"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the wrapped catalog.
func (s *Service) Catalog() *shape.Catalog { return s.catalog }

// Validators lists the validator names.
func (s *Service) Validators() []string { return s.catalog.Validators() }

// Validate runs the named validator on value. On failure the error is either
// a *shape.Errors (the payload is invalid) or wraps shape.ErrUnknownValidator.
func (s *Service) Validate(ctx context.Context, name string, value any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, "validation.validate", trace.WithAttributes(
		attribute.String("queryshape.validator", name),
	))
	defer span.End()

	logger := logging.FromContext(ctx).WithValidator(name)
	start := s.now()

	v, err := s.catalog.Validator(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("queryshape.outcome", observability.OutcomeError))
		s.metrics.RecordValidation(ctx, name, "", "", observability.OutcomeError, s.now().Sub(start), nil)
		logger.Warn("unknown validator")
		return nil, err
	}

	entity, operation := v.Entity(), string(v.Operation())
	span.SetAttributes(
		attribute.String("queryshape.entity", entity),
		attribute.String("queryshape.operation", operation),
	)

	out, err := v.Validate(value)
	elapsed := s.now().Sub(start)
	if err == nil {
		span.SetAttributes(attribute.String("queryshape.outcome", observability.OutcomeValid))
		s.metrics.RecordValidation(ctx, name, entity, operation, observability.OutcomeValid, elapsed, nil)
		logger.Debug("payload valid", slog.Duration("elapsed", elapsed))
		return out, nil
	}

	var issues *shape.Errors
	if !errors.As(err, &issues) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("queryshape.outcome", observability.OutcomeError))
		s.metrics.RecordValidation(ctx, name, entity, operation, observability.OutcomeError, elapsed, nil)
		return nil, err
	}

	// An invalid payload is a normal result; the span stays OK.
	codesSeen := make([]string, len(issues.Issues))
	for i, issue := range issues.Issues {
		codesSeen[i] = string(issue.Code)
	}
	span.SetAttributes(
		attribute.String("queryshape.outcome", observability.OutcomeInvalid),
		attribute.Int("queryshape.issues", issues.Len()),
	)
	s.metrics.RecordValidation(ctx, name, entity, operation, observability.OutcomeInvalid, elapsed, codesSeen)
	if logger.Enabled(ctx, slog.LevelDebug) {
		for _, issue := range issues.Issues {
			logger.Debug("payload issue",
				slog.String("path", issue.Path.String()),
				slog.String("code", string(issue.Code)),
				slog.String("message", issue.Message),
			)
		}
	}
	return nil, issues
}
