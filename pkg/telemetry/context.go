package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithValidationContext creates a context enriched with validation-specific telemetry.
func WithValidationContext(ctx context.Context, planID, target string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start validation span
	spanCtx, span := tel.Tracer.StartValidationSpan(ctx, planID, target)

	// Create validation-specific logger
	logger := tel.Logger.WithPlanID(planID).WithTarget(target)
	spanCtx = logger.WithContext(spanCtx)

	// Store the span and timer in context
	spanCtx = context.WithValue(spanCtx, validationSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, validationTimerKey{}, NewTimer())

	return spanCtx
}

// validationSpanKey is the context key for validation spans.
type validationSpanKey struct{}

// validationTimerKey is the context key for validation timers.
type validationTimerKey struct{}

// EndValidationContext completes the validation context, recording metrics and events.
func EndValidationContext(ctx context.Context, planID, target string, valid bool, violations int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the span from context
	if span, ok := ctx.Value(validationSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(validationTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	tel.Metrics.RecordValidation(target, outcome, duration)

	// Publish events
	_ = tel.Events.PublishValidationCompleted(planID, target, valid, violations, duration)
}

// WithCompileContext creates a context enriched with compilation-specific telemetry.
func WithCompileContext(ctx context.Context, planID, target string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start compile span
	spanCtx, span := tel.Tracer.StartCompileSpan(ctx, planID, target)

	// Create compile-specific logger
	logger := tel.Logger.WithPlanID(planID).WithTarget(target)
	spanCtx = logger.WithContext(spanCtx)

	// Store the span and timer in context
	spanCtx = context.WithValue(spanCtx, compileSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, compileTimerKey{}, NewTimer())

	return spanCtx
}

// compileSpanKey is the context key for compile spans.
type compileSpanKey struct{}

// compileTimerKey is the context key for compile timers.
type compileTimerKey struct{}

// EndCompileContext completes the compile context, recording metrics and events.
// An empty checksum with a nil error means the plan was rejected by validation
// rather than compiled.
func EndCompileContext(ctx context.Context, planID, target, checksum string, artifactBytes int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the span from context
	if span, ok := ctx.Value(compileSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(compileTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	outcome := "succeeded"
	switch {
	case err != nil:
		outcome = "failed"
	case checksum == "":
		outcome = "rejected"
	}
	tel.Metrics.RecordCompilation(target, outcome, duration)
	if outcome == "succeeded" {
		tel.Metrics.ObserveArtifactSize(target, artifactBytes)
	}

	// Publish events
	if err != nil {
		_ = tel.Events.PublishCompilationFailed(planID, target, err.Error())
	} else if checksum != "" {
		_ = tel.Events.PublishCompilationCompleted(planID, target, checksum, duration)
	}
}

// RecordPublish records an artifact publish operation with metrics and tracing.
func RecordPublish(ctx context.Context, planID, target, transport, destination string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	// Start span
	var span trace.Span
	if tel != nil {
		_, span = tel.Tracer.StartPublishSpan(ctx, target, transport)
		defer span.End()
	}

	// Execute operation
	err := fn()

	// Record metrics and events
	if tel != nil {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
			tel.Metrics.RecordArtifactPublished(target, transport)
			_ = tel.Events.PublishArtifactPublished(planID, target, destination)
		}
	}

	return err
}
