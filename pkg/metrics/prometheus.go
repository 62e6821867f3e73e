package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal     *prometheus.CounterVec
	filteredTotal    *prometheus.CounterVec
	allocationsTotal *prometheus.CounterVec
	deploymentsTotal *prometheus.CounterVec
	recoveriesTotal  *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	poolGauge        *prometheus.GaugeVec
	stressLevel      prometheus.Gauge
	overallScore     prometheus.Gauge
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_signals_total",
				Help: "Total signals accepted by the router",
			},
			[]string{"type", "severity"},
		),
		filteredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_signals_filtered_total",
				Help: "Total signals rejected during validation",
			},
			[]string{"reason"},
		),
		allocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_allocations_total",
				Help: "Total margin allocations by domain",
			},
			[]string{"domain"},
		),
		deploymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_deployments_total",
				Help: "Total margin deployments by domain",
			},
			[]string{"domain"},
		),
		recoveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_recoveries_total",
				Help: "Total margin recoveries by domain",
			},
			[]string{"domain"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marginflow_alerts_total",
				Help: "Monitoring alerts raised by severity",
			},
			[]string{"severity"},
		),
		poolGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marginflow_pool_margin",
				Help: "Pool counters per domain",
			},
			[]string{"domain", "counter"},
		),
		stressLevel: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marginflow_stress_level",
				Help: "Stress level of the last processed signal batch",
			},
		),
		overallScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "marginflow_overall_score",
				Help: "Composite resilience score",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marginflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records an accepted signal.
func (r *Recorder) RecordSignal(signalType, severity string) {
	r.signalsTotal.WithLabelValues(signalType, severity).Inc()
}

// RecordFiltered records a rejected signal.
func (r *Recorder) RecordFiltered(reason string) {
	r.filteredTotal.WithLabelValues(reason).Inc()
}

// RecordAllocation records a margin allocation.
func (r *Recorder) RecordAllocation(domain string, amount float64) {
	r.allocationsTotal.WithLabelValues(domain).Inc()
	_ = amount // amounts are exposed via the pool gauge, not the counter
}

// RecordDeployment records a margin deployment.
func (r *Recorder) RecordDeployment(domain string, amount float64) {
	r.deploymentsTotal.WithLabelValues(domain).Inc()
	_ = amount
}

// RecordRecovery records a margin recovery.
func (r *Recorder) RecordRecovery(domain string) {
	r.recoveriesTotal.WithLabelValues(domain).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordAlert records a raised monitoring alert.
func (r *Recorder) RecordAlert(severity string) {
	r.alertsTotal.WithLabelValues(severity).Inc()
}

// SetPool publishes per-domain pool counters.
func (r *Recorder) SetPool(domain string, allocated, deployed, available float64) {
	r.poolGauge.WithLabelValues(domain, "allocated").Set(allocated)
	r.poolGauge.WithLabelValues(domain, "deployed").Set(deployed)
	r.poolGauge.WithLabelValues(domain, "available").Set(available)
}

// SetStressLevel publishes the latest stress level.
func (r *Recorder) SetStressLevel(level float64) {
	r.stressLevel.Set(level)
}

// SetOverallScore publishes the composite resilience score.
func (r *Recorder) SetOverallScore(score float64) {
	r.overallScore.Set(score)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
