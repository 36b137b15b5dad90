// Package telemetry provides observability instrumentation for the maicrosoft
// plan pipeline.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring plan validation and compilation.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "maicrosoft"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation. Logs default to stderr so that compiled artifacts can be
// written to stdout:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithPlanID("wf-orders").WithTarget("n8n")
//	logger.Info("Validating plan")
//	logger.WithError(err).Error("Validation pipeline failed")
//
// Packages that accept a plain zerolog.Logger are wired through
// tel.Logger.Zerolog().
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into the validation and compilation flow:
//
//	ctx, span := tel.Tracer.StartValidationSpan(ctx, planID, target)
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    telemetry.AttrPlanVersion.String(plan.Metadata.Version),
//	)
//
//	// Record events
//	span.AddEvent("graph.analyzed")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), None (testing)
//
// # Metrics
//
// Prometheus metrics track pipeline behavior and performance:
//
//	// Record a validation
//	tel.Metrics.RecordValidation("n8n", "valid", duration)
//	tel.Metrics.RecordViolations("UNKNOWN_PRIMITIVE", "error", 2)
//
//	// Record a compilation
//	tel.Metrics.RecordCompilation("n8n", "succeeded", duration)
//	tel.Metrics.ObserveArtifactSize("n8n", len(artifact.Content))
//
//	// Record catalog state
//	tel.Metrics.SetCatalogPrimitives("stable", 10)
//
//	// Record errors
//	tel.Metrics.RecordError("permanent", "TARGET_UNKNOWN")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishPlanSubmitted(planID, "api")
//	tel.Events.PublishValidationCompleted(planID, target, valid, violations, duration)
//	tel.Events.PublishPolicyViolation(planID, nodeID, rule, reason)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByPlanID, FilterByTarget
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "catalog.reload",
//	    attribute.String("source", dir))
//	defer ic.End(err)
//
//	ic.Logger.Info("Reloading primitive catalog")
//
//	// Validation context
//	ctx = telemetry.WithValidationContext(ctx, planID, target)
//	defer telemetry.EndValidationContext(ctx, planID, target, valid, violations, err)
//
//	// Compile context
//	ctx = telemetry.WithCompileContext(ctx, planID, target)
//	defer telemetry.EndCompileContext(ctx, planID, target, checksum, size, err)
//
//	// Publish operation
//	err := telemetry.RecordPublish(ctx, planID, target, "sftp", dest, func() error {
//	    return publisher.Publish(ctx, artifact)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "maicrosoft",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are published
//  - All pending traces are exported
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - maicrosoft_plans_submitted_total{source}
//  - maicrosoft_validations_total{target,outcome}
//  - maicrosoft_validation_duration_seconds{target}
//  - maicrosoft_violations_total{code,severity}
//  - maicrosoft_compilations_total{target,outcome}
//  - maicrosoft_compile_duration_seconds{target}
//  - maicrosoft_artifact_bytes{target}
//  - maicrosoft_catalog_primitives{status}
//  - maicrosoft_policy_findings_total{rule,severity}
//  - maicrosoft_artifacts_published_total{target,transport}
//  - maicrosoft_errors_by_class_total{class}
//  - maicrosoft_http_requests_total{method,route,status}
//  - maicrosoft_plans_in_flight
//
// # Security Considerations
//
//  - Never log plan input values that may carry secrets
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
package telemetry
