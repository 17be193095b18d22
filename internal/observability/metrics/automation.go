// Package metrics provides Prometheus metrics for automation dispatch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AutomationMetrics contains the Prometheus metrics for scanning, queueing
// and delivering automation notifications. A nil *AutomationMetrics is a
// valid no-op recorder.
type AutomationMetrics struct {
	// Ledger metrics
	DispatchCreatedTotal  *prometheus.CounterVec // Dispatch records created by type
	DispatchOutcomesTotal *prometheus.CounterVec // Worker outcomes by type and outcome

	// Scanner metrics
	ScanDuration      *prometheus.HistogramVec // Sweep latency by type
	ScanEnqueuedTotal *prometheus.CounterVec   // Jobs enqueued by sweeps by type

	// Delivery metrics
	DeliveryDuration    *prometheus.HistogramVec // Mail transport latency by transport
	DeliveryErrorsTotal *prometheus.CounterVec   // Mail transport errors by transport and error category
	CircuitBreakerState *prometheus.GaugeVec     // 0=closed, 1=half-open, 2=open by transport

	// Worker metrics
	WorkerInflight *prometheus.GaugeVec // Jobs currently being handled by queue

	// Supporting components
	RateLimitDecisionsTotal *prometheus.CounterVec // Limiter decisions by scope and result
	AuditPublishTotal       *prometheus.CounterVec // Audit mirror publishes by sink and status

	registry *prometheus.Registry
}

// NewAutomationMetrics creates the automation metrics and registers them on
// the registry.
func NewAutomationMetrics(registry *prometheus.Registry) (*AutomationMetrics, error) {
	m := &AutomationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register automation metrics: %w", err)
	}
	return m, nil
}

func (m *AutomationMetrics) initMetrics() {
	m.DispatchCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_dispatch_created_total",
			Help: "Total number of dispatch records created by notification type",
		},
		[]string{"type"},
	)

	m.DispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_dispatch_outcomes_total",
			Help: "Total number of handled jobs by notification type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: sent, skipped, failed, dropped
	)

	m.ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myeventlane_scan_duration_seconds",
			Help:    "Time taken by one scanner sweep by notification type",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"type"},
	)

	m.ScanEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_scan_enqueued_total",
			Help: "Total number of jobs enqueued by scanner sweeps by notification type",
		},
		[]string{"type"},
	)

	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myeventlane_delivery_duration_seconds",
			Help:    "Time taken to hand a rendered message to the mail transport",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"transport"},
	)

	m.DeliveryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_delivery_errors_total",
			Help: "Total number of mail delivery errors by transport and error category",
		},
		[]string{"transport", "category"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "myeventlane_mailer_circuit_breaker_state",
			Help: "Circuit breaker state for the mail transport (0=closed, 1=half-open, 2=open)",
		},
		[]string{"transport"},
	)

	m.WorkerInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "myeventlane_worker_inflight",
			Help: "Number of jobs currently being handled by queue",
		},
		[]string{"queue"},
	)

	m.RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_ratelimit_decisions_total",
			Help: "Total number of rate limiter decisions by scope and result",
		},
		[]string{"scope", "result"}, // result: allowed, denied
	)

	m.AuditPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myeventlane_audit_publish_total",
			Help: "Total number of audit entries mirrored to external sinks by sink and status",
		},
		[]string{"sink", "status"},
	)
}

// RecordDispatchCreated counts one created dispatch record.
func (m *AutomationMetrics) RecordDispatchCreated(notificationType string) {
	if m == nil {
		return
	}
	m.DispatchCreatedTotal.WithLabelValues(notificationType).Inc()
}

// RecordOutcome counts one handled job.
func (m *AutomationMetrics) RecordOutcome(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.DispatchOutcomesTotal.WithLabelValues(notificationType, outcome).Inc()
}

// RecordScan records a finished sweep and the number of jobs it enqueued.
func (m *AutomationMetrics) RecordScan(notificationType string, duration time.Duration, enqueued int) {
	if m == nil {
		return
	}
	m.ScanDuration.WithLabelValues(notificationType).Observe(duration.Seconds())
	if enqueued > 0 {
		m.ScanEnqueuedTotal.WithLabelValues(notificationType).Add(float64(enqueued))
	}
}

// RecordDelivery records one transport call. errorCategory is empty on success.
func (m *AutomationMetrics) RecordDelivery(transport string, duration time.Duration, errorCategory string) {
	if m == nil {
		return
	}
	m.DeliveryDuration.WithLabelValues(transport).Observe(duration.Seconds())
	if errorCategory != "" {
		m.DeliveryErrorsTotal.WithLabelValues(transport, errorCategory).Inc()
	}
}

// UpdateCircuitBreakerState sets the breaker gauge for a transport.
func (m *AutomationMetrics) UpdateCircuitBreakerState(transport string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(transport).Set(float64(state))
}

// JobStarted increments the in-flight gauge for a queue.
func (m *AutomationMetrics) JobStarted(queue string) {
	if m == nil {
		return
	}
	m.WorkerInflight.WithLabelValues(queue).Inc()
}

// JobFinished decrements the in-flight gauge for a queue.
func (m *AutomationMetrics) JobFinished(queue string) {
	if m == nil {
		return
	}
	m.WorkerInflight.WithLabelValues(queue).Dec()
}

// RecordRateLimit counts one limiter decision.
func (m *AutomationMetrics) RecordRateLimit(scope string, allowed bool) {
	if m == nil {
		return
	}
	result := ResultDenied
	if allowed {
		result = ResultAllowed
	}
	m.RateLimitDecisionsTotal.WithLabelValues(scope, result).Inc()
}

// RecordAuditPublish counts one audit mirror publish.
func (m *AutomationMetrics) RecordAuditPublish(sink string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.AuditPublishTotal.WithLabelValues(sink, status).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AutomationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DispatchCreatedTotal.Describe(ch)
	m.DispatchOutcomesTotal.Describe(ch)
	m.ScanDuration.Describe(ch)
	m.ScanEnqueuedTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.DeliveryErrorsTotal.Describe(ch)
	m.CircuitBreakerState.Describe(ch)
	m.WorkerInflight.Describe(ch)
	m.RateLimitDecisionsTotal.Describe(ch)
	m.AuditPublishTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AutomationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DispatchCreatedTotal.Collect(ch)
	m.DispatchOutcomesTotal.Collect(ch)
	m.ScanDuration.Collect(ch)
	m.ScanEnqueuedTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.DeliveryErrorsTotal.Collect(ch)
	m.CircuitBreakerState.Collect(ch)
	m.WorkerInflight.Collect(ch)
	m.RateLimitDecisionsTotal.Collect(ch)
	m.AuditPublishTotal.Collect(ch)
}

// StartScanTimer returns a timer for one sweep.
func (m *AutomationMetrics) StartScanTimer(notificationType string) *ScanTimer {
	return &ScanTimer{startTime: time.Now(), notificationType: notificationType, metrics: m}
}

// ScanTimer measures a scanner sweep.
type ScanTimer struct {
	startTime        time.Time
	notificationType string
	metrics          *AutomationMetrics
}

// ObserveDuration stops the timer and records the sweep.
func (st *ScanTimer) ObserveDuration(enqueued int) time.Duration {
	d := time.Since(st.startTime)
	st.metrics.RecordScan(st.notificationType, d, enqueued)
	return d
}
