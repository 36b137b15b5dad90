package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the plan pipeline.
type Metrics struct {
	config MetricsConfig

	// Plan intake metrics
	plansSubmitted *prometheus.CounterVec

	// Validation metrics
	validationsTotal   *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	violationsTotal    *prometheus.CounterVec

	// Compilation metrics
	compilationsTotal *prometheus.CounterVec
	compileDuration   *prometheus.HistogramVec
	artifactBytes     *prometheus.HistogramVec

	// Catalog metrics
	catalogPrimitives *prometheus.GaugeVec
	catalogReloads    *prometheus.CounterVec

	// Policy metrics
	policyFindings *prometheus.CounterVec

	// Publishing metrics
	artifactsPublished *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// HTTP API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// System metrics
	plansInFlight prometheus.Gauge
	queuedPlans   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Plan intake metrics
		plansSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_submitted_total",
				Help:      "Total number of plans submitted for validation",
			},
			[]string{"source"},
		),

		// Validation metrics
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of plan validations",
			},
			[]string{"target", "outcome"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Duration of the validation pipeline in seconds",
				Buckets:   buckets,
			},
			[]string{"target"},
		),
		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of validation violations by code",
			},
			[]string{"code", "severity"},
		),

		// Compilation metrics
		compilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilations_total",
				Help:      "Total number of plan compilations",
			},
			[]string{"target", "outcome"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of plan compilation in seconds",
				Buckets:   buckets,
			},
			[]string{"target"},
		),
		artifactBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Size of compiled artifacts in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"target"},
		),

		// Catalog metrics
		catalogPrimitives: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_primitives",
				Help:      "Current number of primitives in the catalog",
			},
			[]string{"status"},
		),
		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_reloads_total",
				Help:      "Total number of primitive catalog reloads",
			},
			[]string{"source"},
		),

		// Policy metrics
		policyFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Total number of policy findings",
			},
			[]string{"rule", "severity"},
		),

		// Publishing metrics
		artifactsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_published_total",
				Help:      "Total number of artifacts published",
			},
			[]string{"target", "transport"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// HTTP API metrics
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP API requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "route"},
		),

		// System metrics
		plansInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plans_in_flight",
				Help:      "Current number of plans being validated or compiled",
			},
		),
		queuedPlans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_plans",
				Help:      "Current number of plans queued for batch validation",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.plansSubmitted,
		m.validationsTotal,
		m.validationDuration,
		m.violationsTotal,
		m.compilationsTotal,
		m.compileDuration,
		m.artifactBytes,
		m.catalogPrimitives,
		m.catalogReloads,
		m.policyFindings,
		m.artifactsPublished,
		m.errorsByClass,
		m.errorsByCode,
		m.httpRequests,
		m.httpDuration,
		m.plansInFlight,
		m.queuedPlans,
	)

	return m, nil
}

// Plan Intake Metrics

// RecordPlanSubmitted increments the counter for submitted plans.
func (m *Metrics) RecordPlanSubmitted(source string) {
	if m.plansSubmitted == nil {
		return
	}
	m.plansSubmitted.WithLabelValues(source).Inc()
	m.plansInFlight.Inc()
}

// RecordPlanSettled marks a submitted plan as having reached a terminal
// outcome, valid or not.
func (m *Metrics) RecordPlanSettled() {
	if m.plansInFlight == nil {
		return
	}
	m.plansInFlight.Dec()
}

// Validation Metrics

// RecordValidation records a completed validation with its outcome and duration.
func (m *Metrics) RecordValidation(target, outcome string, duration time.Duration) {
	if m.validationsTotal == nil {
		return
	}
	m.validationsTotal.WithLabelValues(target, outcome).Inc()
	m.validationDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordViolations records validation violations of a given code and severity.
func (m *Metrics) RecordViolations(code, severity string, count int) {
	if m.violationsTotal == nil || count <= 0 {
		return
	}
	m.violationsTotal.WithLabelValues(code, severity).Add(float64(count))
}

// Compilation Metrics

// RecordCompilation records a compilation attempt with its outcome and duration.
func (m *Metrics) RecordCompilation(target, outcome string, duration time.Duration) {
	if m.compilationsTotal == nil {
		return
	}
	m.compilationsTotal.WithLabelValues(target, outcome).Inc()
	m.compileDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// ObserveArtifactSize records the size of a compiled artifact.
func (m *Metrics) ObserveArtifactSize(target string, bytes int) {
	if m.artifactBytes == nil {
		return
	}
	m.artifactBytes.WithLabelValues(target).Observe(float64(bytes))
}

// Catalog Metrics

// SetCatalogPrimitives sets the current primitive count for a lifecycle status.
func (m *Metrics) SetCatalogPrimitives(status string, count float64) {
	if m.catalogPrimitives == nil {
		return
	}
	m.catalogPrimitives.WithLabelValues(status).Set(count)
}

// RecordCatalogReload records a reload of the primitive catalog.
func (m *Metrics) RecordCatalogReload(source string) {
	if m.catalogReloads == nil {
		return
	}
	m.catalogReloads.WithLabelValues(source).Inc()
}

// Policy Metrics

// RecordPolicyFinding records a policy finding by rule and severity.
func (m *Metrics) RecordPolicyFinding(rule, severity string) {
	if m.policyFindings == nil {
		return
	}
	m.policyFindings.WithLabelValues(rule, severity).Inc()
}

// Publishing Metrics

// RecordArtifactPublished records a published artifact by target and transport.
func (m *Metrics) RecordArtifactPublished(target, transport string) {
	if m.artifactsPublished == nil {
		return
	}
	m.artifactsPublished.WithLabelValues(target, transport).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// HTTP API Metrics

// RecordHTTPRequest records an HTTP API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// System Metrics

// SetPlansInFlight sets the current number of in-flight plans.
func (m *Metrics) SetPlansInFlight(count float64) {
	if m.plansInFlight == nil {
		return
	}
	m.plansInFlight.Set(count)
}

// SetQueuedPlans sets the current number of queued plans.
func (m *Metrics) SetQueuedPlans(count float64) {
	if m.queuedPlans == nil {
		return
	}
	m.queuedPlans.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
