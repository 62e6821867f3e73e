package monitoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/router"
	"MarginFlow/pkg/logger"
)

// Component score weights for the overall resilience score.
const (
	weightSignalProcessing = 0.20
	weightAntifragile      = 0.25
	weightAdaptive         = 0.20
	weightMargin           = 0.15
	weightResponseTime     = 0.10
	weightErrorHandling    = 0.10
)

// DomainSource provides one margin domain's read-only snapshot.
type DomainSource interface {
	Domain() string
	Status() models.DomainStatus
}

// AdaptationSource provides the antifragile engine's read-only snapshot.
type AdaptationSource interface {
	Status() models.AntifragileStatus
}

// RouterSource provides cumulative routing counters.
type RouterSource interface {
	Stats() router.Stats
}

// Config holds the monitor's tunables.
type Config struct {
	CollectionInterval time.Duration
	RetentionPeriod    time.Duration
	MinAlertSeverity   models.Severity
	Thresholds         []models.AlertThreshold
	MarginEnabled      bool
	AntifragileEnabled bool
	RouterEnabled      bool
}

// Monitor samples all engine components on a timer, derives the composite
// resilience score, evaluates alert thresholds, and owns alert lifecycle.
type Monitor struct {
	cfg     Config
	logger  *logger.Logger
	metrics domrepo.Metrics

	domains     []DomainSource
	adaptations AdaptationSource
	routerSrc   RouterSource

	book *alertBook

	mu      sync.RWMutex
	history []models.ResilienceMetrics

	metricsSink func(*models.ResilienceMetrics)
	notifier    domrepo.AlertNotifier

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates the metrics monitor.
func New(cfg Config, l *logger.Logger, metrics domrepo.Metrics, domains []DomainSource, adaptations AdaptationSource, routerSrc RouterSource) *Monitor {
	if cfg.CollectionInterval <= 0 {
		cfg.CollectionInterval = 30 * time.Second
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}
	if cfg.MinAlertSeverity == "" {
		cfg.MinAlertSeverity = models.SeverityLow
	}
	return &Monitor{
		cfg:         cfg,
		logger:      l,
		metrics:     metrics,
		domains:     domains,
		adaptations: adaptations,
		routerSrc:   routerSrc,
		book:        newAlertBook(),
		stopCh:      make(chan struct{}),
	}
}

// SetMetricsSink wires the asynchronous snapshot persistence hook.
func (m *Monitor) SetMetricsSink(sink func(*models.ResilienceMetrics)) { m.metricsSink = sink }

// SetNotifier wires the external alert channel.
func (m *Monitor) SetNotifier(n domrepo.AlertNotifier) { m.notifier = n }

// Start launches the collection ticker.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.CollectionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Collect(ctx)
			}
		}
	}()
	m.logger.Info("metrics monitor started",
		logger.Duration("interval", m.cfg.CollectionInterval),
		logger.Int("thresholds", len(m.cfg.Thresholds)))
}

// Stop terminates the collection ticker.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Collect performs one collection tick: snapshot every component, derive
// scores, evaluate thresholds, evict expired history. Exposed for tests and
// for the on-demand refresh endpoint.
func (m *Monitor) Collect(ctx context.Context) models.ResilienceMetrics {
	start := time.Now()
	snapshot := m.buildSnapshot(start)

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	cutoff := start.Add(-m.cfg.RetentionPeriod)
	idx := 0
	for idx < len(m.history) && m.history[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		m.history = m.history[idx:]
	}
	m.mu.Unlock()

	m.book.evict(cutoff)
	m.evaluateThresholds(ctx, &snapshot)

	m.metrics.SetOverallScore(snapshot.OverallScore)
	m.metrics.RecordLatency("metrics_collect", time.Since(start).Seconds())
	if m.metricsSink != nil {
		m.metricsSink(&snapshot)
	}
	return snapshot
}

func (m *Monitor) buildSnapshot(now time.Time) models.ResilienceMetrics {
	snap := models.ResilienceMetrics{
		Timestamp:            now,
		MarginUtilization:    make(map[string]float64),
		SeverityDistribution: make(map[models.Severity]int64),
	}

	// Router counters: processing efficiency and error-handling score.
	signalScore, errorScore := 100.0, 100.0
	if m.cfg.RouterEnabled && m.routerSrc != nil {
		stats := m.routerSrc.Stats()
		snap.SignalsProcessed = stats.Processed
		snap.SignalsFiltered = stats.Filtered
		for sev, n := range stats.SeverityDistribution {
			snap.SeverityDistribution[sev] = n
		}
		total := stats.Processed + stats.Filtered
		if total > 0 {
			ratio := float64(stats.Processed) / float64(total)
			signalScore = clampScore(ratio * 100)
			errorScore = clampScore(100 - (1-ratio)*100)
			snap.Performance.ErrorRate = 1 - ratio
		}
		snap.Performance.Throughput = float64(total)
	}

	// Margin domains: availability-based efficiency, mean across enabled pools.
	marginScore := 100.0
	if m.cfg.MarginEnabled && len(m.domains) > 0 {
		var sum float64
		counted := 0
		for _, d := range m.domains {
			st := d.Status()
			snap.MarginUtilization[st.Domain] = st.UtilizationRate
			if !st.Enabled {
				continue
			}
			availRatio := 1.0
			if st.Capacity > 0 {
				availRatio = st.AvailableMargin / st.Capacity
			}
			sum += clampScore(availRatio * 100)
			counted++
		}
		if counted > 0 {
			marginScore = sum / float64(counted)
		}
	}

	// Antifragile engine: its own score doubles as the adaptive-accuracy input.
	antifragileScore, adaptiveScore := 100.0, 100.0
	if m.cfg.AntifragileEnabled && m.adaptations != nil {
		st := m.adaptations.Status()
		antifragileScore = clampScore(st.Score)
		adaptiveScore = clampScore(st.SuccessRate * 100)
		snap.AntifragileScore = antifragileScore
	}

	// Response time measured as the previous collection latency; first tick
	// assumes nominal.
	latencyMS := 5.0
	m.mu.RLock()
	if n := len(m.history); n > 0 {
		latencyMS = m.history[n-1].Performance.LatencyMS
	}
	m.mu.RUnlock()
	responseScore := clampScore(100 - latencyMS)
	snap.Performance.LatencyMS = float64(time.Since(now).Microseconds()) / 1000
	snap.Performance.Availability = 1

	snap.Components = models.ComponentScores{
		SignalProcessing: signalScore,
		Antifragile:      antifragileScore,
		Adaptive:         adaptiveScore,
		MarginEfficiency: clampScore(marginScore),
		ResponseTime:     responseScore,
		ErrorHandling:    errorScore,
	}
	snap.OverallScore = clampScore(
		snap.Components.SignalProcessing*weightSignalProcessing +
			snap.Components.Antifragile*weightAntifragile +
			snap.Components.Adaptive*weightAdaptive +
			snap.Components.MarginEfficiency*weightMargin +
			snap.Components.ResponseTime*weightResponseTime +
			snap.Components.ErrorHandling*weightErrorHandling)

	switch {
	case snap.OverallScore >= 70:
		snap.Health = "healthy"
	case snap.OverallScore >= 40:
		snap.Health = "degraded"
	default:
		snap.Health = "critical"
	}
	return snap
}

func (m *Monitor) evaluateThresholds(ctx context.Context, snap *models.ResilienceMetrics) {
	for _, t := range m.cfg.Thresholds {
		value, ok := metricValue(snap, t.Metric)
		if !ok {
			m.logger.Warn("unknown threshold metric", logger.String("metric", t.Metric))
			continue
		}
		if !t.Operator.Matches(value, t.Value) {
			continue
		}
		if !t.Severity.AtLeast(m.cfg.MinAlertSeverity) {
			continue
		}
		alert, created := m.book.raise(t, value, snap.Timestamp)
		if !created {
			continue
		}
		m.metrics.RecordAlert(string(alert.Severity))
		m.logger.Warn("monitoring alert raised",
			logger.String("alert_id", alert.ID),
			logger.String("metric", t.Metric),
			logger.String("severity", string(t.Severity)),
			logger.Any("observed", value))
		if m.notifier != nil {
			if err := m.notifier.Notify(ctx, alert); err != nil {
				m.metrics.RecordError("alert_notify")
				m.logger.Error("alert notification failed", logger.Error(err))
			}
		}
	}
}

// metricValue resolves a threshold metric name against a snapshot.
// Domain utilization is addressed as margin_utilization_<domain>.
func metricValue(snap *models.ResilienceMetrics, name string) (float64, bool) {
	switch name {
	case "overall_score":
		return snap.OverallScore, true
	case "signal_processing":
		return snap.Components.SignalProcessing, true
	case "antifragile_score":
		return snap.Components.Antifragile, true
	case "adaptive_score":
		return snap.Components.Adaptive, true
	case "margin_efficiency":
		return snap.Components.MarginEfficiency, true
	case "response_time":
		return snap.Components.ResponseTime, true
	case "error_handling":
		return snap.Components.ErrorHandling, true
	case "error_rate":
		return snap.Performance.ErrorRate, true
	case "latency_ms":
		return snap.Performance.LatencyMS, true
	case "signals_filtered":
		return float64(snap.SignalsFiltered), true
	}
	if domain, ok := strings.CutPrefix(name, "margin_utilization_"); ok {
		v, found := snap.MarginUtilization[domain]
		return v, found
	}
	return 0, false
}

// Current returns the most recent snapshot, or a fresh one when none exists.
func (m *Monitor) Current(ctx context.Context) models.ResilienceMetrics {
	m.mu.RLock()
	n := len(m.history)
	if n > 0 {
		snap := m.history[n-1]
		m.mu.RUnlock()
		return snap
	}
	m.mu.RUnlock()
	return m.Collect(ctx)
}

// History returns up to limit snapshots, newest first.
func (m *Monitor) History(limit int) []models.ResilienceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]models.ResilienceMetrics, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// AcknowledgeAlert transitions an alert to ACKNOWLEDGED; idempotent.
func (m *Monitor) AcknowledgeAlert(id string) (*models.MonitoringAlert, error) {
	return m.book.acknowledge(id)
}

// ResolveAlert transitions an alert to RESOLVED; idempotent.
func (m *Monitor) ResolveAlert(id, resolution string) (*models.MonitoringAlert, error) {
	return m.book.resolve(id, resolution)
}

// ActiveAlerts returns open alerts, newest first.
func (m *Monitor) ActiveAlerts() []*models.MonitoringAlert {
	return m.book.active()
}

// AllAlerts returns up to limit alerts, newest first.
func (m *Monitor) AllAlerts(limit int) []*models.MonitoringAlert {
	return m.book.all(limit)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
