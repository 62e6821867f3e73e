package monitoring

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"MarginFlow/internal/domain/models"
	"MarginFlow/internal/router"
	"MarginFlow/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, string)               {}
func (nopMetrics) RecordFiltered(string)                     {}
func (nopMetrics) RecordAllocation(string, float64)          {}
func (nopMetrics) RecordDeployment(string, float64)          {}
func (nopMetrics) RecordRecovery(string)                     {}
func (nopMetrics) RecordError(string)                        {}
func (nopMetrics) RecordLatency(string, float64)             {}
func (nopMetrics) SetPool(string, float64, float64, float64) {}
func (nopMetrics) SetStressLevel(float64)                    {}
func (nopMetrics) SetOverallScore(float64)                   {}
func (nopMetrics) RecordAlert(string)                        {}

type fakeDomain struct {
	name   string
	status models.DomainStatus
}

func (d *fakeDomain) Domain() string              { return d.name }
func (d *fakeDomain) Status() models.DomainStatus { return d.status }

type fakeAdaptations struct{ status models.AntifragileStatus }

func (a *fakeAdaptations) Status() models.AntifragileStatus { return a.status }

type fakeRouter struct{ stats router.Stats }

func (r *fakeRouter) Stats() router.Stats { return r.stats }

type capturingNotifier struct {
	mu     sync.Mutex
	alerts []*models.MonitoringAlert
	err    error
}

func (n *capturingNotifier) Notify(_ context.Context, a *models.MonitoringAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *capturingNotifier) Close() error { return nil }

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func healthyDomain(name string) *fakeDomain {
	return &fakeDomain{name: name, status: models.DomainStatus{
		Domain: name, Enabled: true, Capacity: 100, AvailableMargin: 100,
	}}
}

func newTestMonitor(t *testing.T, cfg Config, domains []DomainSource, ad AdaptationSource, rt RouterSource) *Monitor {
	t.Helper()
	return New(cfg, testLogger(t), nopMetrics{}, domains, ad, rt)
}

func TestCollectHealthySystemScoresHigh(t *testing.T) {
	m := newTestMonitor(t, Config{
		MarginEnabled: true, AntifragileEnabled: true, RouterEnabled: true,
	},
		[]DomainSource{healthyDomain("time"), healthyDomain("capacity")},
		&fakeAdaptations{status: models.AntifragileStatus{Score: 100, SuccessRate: 1}},
		&fakeRouter{stats: router.Stats{Processed: 100, Filtered: 0}},
	)

	snap := m.Collect(context.Background())
	if snap.OverallScore < 90 || snap.OverallScore > 100 {
		t.Fatalf("healthy system should score near 100, got %v", snap.OverallScore)
	}
	if snap.Health != "healthy" {
		t.Fatalf("expected healthy, got %q", snap.Health)
	}
}

func TestCollectScoreStaysBounded(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	ad := &fakeAdaptations{}
	rt := &fakeRouter{}
	dom := &fakeDomain{name: "capacity"}
	m := newTestMonitor(t, Config{
		MarginEnabled: true, AntifragileEnabled: true, RouterEnabled: true,
	},
		[]DomainSource{dom}, ad, rt,
	)

	for i := 0; i < 100; i++ {
		// randomized load, including deliberately out-of-range component inputs
		rt.stats = router.Stats{
			Processed: rnd.Int63n(1000),
			Filtered:  rnd.Int63n(1000),
		}
		ad.status = models.AntifragileStatus{
			Score:       rnd.Float64()*300 - 50,
			SuccessRate: rnd.Float64() * 3,
		}
		allocated := rnd.Float64() * 120
		dom.status = models.DomainStatus{
			Domain: "capacity", Enabled: true, Capacity: 100,
			TotalAllocated:  allocated,
			AvailableMargin: 100 - allocated,
			UtilizationRate: allocated / 100,
		}

		snap := m.Collect(context.Background())
		if snap.OverallScore < 0 || snap.OverallScore > 100 {
			t.Fatalf("score out of bounds: %v", snap.OverallScore)
		}
		for _, c := range []float64{
			snap.Components.SignalProcessing, snap.Components.Antifragile,
			snap.Components.Adaptive, snap.Components.MarginEfficiency,
			snap.Components.ResponseTime, snap.Components.ErrorHandling,
		} {
			if c < 0 || c > 100 {
				t.Fatalf("component score out of bounds: %v", c)
			}
		}
	}
}

func TestCollectAllFilteredIsCritical(t *testing.T) {
	m := newTestMonitor(t, Config{
		MarginEnabled: true, AntifragileEnabled: true, RouterEnabled: true,
	},
		nil,
		&fakeAdaptations{status: models.AntifragileStatus{Score: 0, SuccessRate: 0}},
		&fakeRouter{stats: router.Stats{Processed: 0, Filtered: 100}},
	)

	snap := m.Collect(context.Background())
	if snap.Health != "critical" {
		t.Fatalf("expected critical, got %q (score %v)", snap.Health, snap.OverallScore)
	}
	if snap.Performance.ErrorRate != 1 {
		t.Fatalf("expected error rate 1, got %v", snap.Performance.ErrorRate)
	}
}

func TestThresholdRaisesAlertOnce(t *testing.T) {
	notifier := &capturingNotifier{}
	m := newTestMonitor(t, Config{
		RouterEnabled: true,
		Thresholds: []models.AlertThreshold{{
			Metric: "error_rate", Operator: models.OpGT, Value: 0.2, Severity: models.SeverityHigh,
		}},
	},
		nil, nil,
		&fakeRouter{stats: router.Stats{Processed: 10, Filtered: 90}},
	)
	m.SetNotifier(notifier)

	// matching condition across several ticks produces exactly one alert
	for i := 0; i < 5; i++ {
		m.Collect(context.Background())
	}
	active := m.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier called %d times, want 1", notifier.count())
	}
	a := active[0]
	if a.Metric != "error_rate" || a.Severity != models.SeverityHigh || a.Status != models.AlertActive {
		t.Fatalf("unexpected alert %+v", a)
	}
}

func TestAlertReRaisesAfterResolve(t *testing.T) {
	m := newTestMonitor(t, Config{
		RouterEnabled: true,
		Thresholds: []models.AlertThreshold{{
			Metric: "error_rate", Operator: models.OpGT, Value: 0.2, Severity: models.SeverityHigh,
		}},
	},
		nil, nil,
		&fakeRouter{stats: router.Stats{Processed: 10, Filtered: 90}},
	)

	m.Collect(context.Background())
	first := m.ActiveAlerts()[0]

	// acknowledged still suppresses duplicates
	if _, err := m.AcknowledgeAlert(first.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	m.Collect(context.Background())
	if n := len(m.ActiveAlerts()); n != 1 {
		t.Fatalf("acknowledged alert did not suppress re-raise, got %d", n)
	}

	// resolved clears the way for a fresh alert
	if _, err := m.ResolveAlert(first.ID, "fixed upstream"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	m.Collect(context.Background())
	active := m.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected fresh alert after resolve, got %d", len(active))
	}
	if active[0].ID == first.ID {
		t.Fatalf("expected a new alert id after resolve")
	}
}

func TestAlertLifecycleIsIdempotent(t *testing.T) {
	m := newTestMonitor(t, Config{
		RouterEnabled: true,
		Thresholds: []models.AlertThreshold{{
			Metric: "signals_filtered", Operator: models.OpGTE, Value: 1, Severity: models.SeverityMedium,
		}},
	},
		nil, nil,
		&fakeRouter{stats: router.Stats{Processed: 1, Filtered: 5}},
	)

	m.Collect(context.Background())
	id := m.ActiveAlerts()[0].ID

	a1, err := m.AcknowledgeAlert(id)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if a1.Status != models.AlertAcknowledged || a1.AcknowledgedAt == nil {
		t.Fatalf("bad acknowledge transition: %+v", a1)
	}
	ackAt := *a1.AcknowledgedAt

	// repeat acknowledge keeps the original timestamp
	a2, _ := m.AcknowledgeAlert(id)
	if !a2.AcknowledgedAt.Equal(ackAt) {
		t.Fatalf("repeat acknowledge moved the timestamp")
	}

	r1, err := m.ResolveAlert(id, "done")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r1.Status != models.AlertResolved || r1.ResolvedAt == nil || r1.Resolution != "done" {
		t.Fatalf("bad resolve transition: %+v", r1)
	}
	resolvedAt := *r1.ResolvedAt

	r2, _ := m.ResolveAlert(id, "ignored")
	if !r2.ResolvedAt.Equal(resolvedAt) || r2.Resolution != "done" {
		t.Fatalf("repeat resolve mutated the alert: %+v", r2)
	}

	// acknowledging a resolved alert is a no-op, never a regression
	a3, _ := m.AcknowledgeAlert(id)
	if a3.Status != models.AlertResolved {
		t.Fatalf("acknowledge moved a resolved alert back to %s", a3.Status)
	}

	if _, err := m.AcknowledgeAlert("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.ResolveAlert("missing", ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMinAlertSeverityFilters(t *testing.T) {
	m := newTestMonitor(t, Config{
		RouterEnabled:    true,
		MinAlertSeverity: models.SeverityHigh,
		Thresholds: []models.AlertThreshold{
			{Metric: "error_rate", Operator: models.OpGT, Value: 0.2, Severity: models.SeverityMedium},
			{Metric: "signals_filtered", Operator: models.OpGTE, Value: 1, Severity: models.SeverityCritical},
		},
	},
		nil, nil,
		&fakeRouter{stats: router.Stats{Processed: 10, Filtered: 90}},
	)

	m.Collect(context.Background())
	active := m.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected only the critical alert, got %d", len(active))
	}
	if active[0].Metric != "signals_filtered" {
		t.Fatalf("wrong alert passed the severity filter: %+v", active[0])
	}
}

func TestDomainUtilizationThreshold(t *testing.T) {
	surge := &fakeDomain{name: "surge", status: models.DomainStatus{
		Domain: "surge", Enabled: true, Capacity: 40,
		TotalAllocated: 38, AvailableMargin: 2, UtilizationRate: 0.95,
	}}
	m := newTestMonitor(t, Config{
		MarginEnabled: true,
		Thresholds: []models.AlertThreshold{{
			Metric: "margin_utilization_surge", Operator: models.OpGT, Value: 0.9, Severity: models.SeverityHigh,
		}},
	},
		[]DomainSource{surge}, nil, nil,
	)

	snap := m.Collect(context.Background())
	if snap.MarginUtilization["surge"] != 0.95 {
		t.Fatalf("utilization not captured: %v", snap.MarginUtilization)
	}
	if len(m.ActiveAlerts()) != 1 {
		t.Fatalf("expected utilization alert")
	}
}

func TestUnknownThresholdMetricIsSkipped(t *testing.T) {
	m := newTestMonitor(t, Config{
		Thresholds: []models.AlertThreshold{{
			Metric: "no_such_metric", Operator: models.OpGT, Value: 0, Severity: models.SeverityCritical,
		}},
	}, nil, nil, nil)

	m.Collect(context.Background())
	if len(m.ActiveAlerts()) != 0 {
		t.Fatalf("unknown metric must not alert")
	}
}

func TestHistoryNewestFirstAndLimited(t *testing.T) {
	m := newTestMonitor(t, Config{}, nil, nil, nil)

	for i := 0; i < 5; i++ {
		m.Collect(context.Background())
		time.Sleep(time.Millisecond)
	}

	hist := m.History(3)
	if len(hist) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp.After(hist[i-1].Timestamp) {
			t.Fatalf("history not newest-first")
		}
	}
	if got := len(m.History(0)); got != 5 {
		t.Fatalf("limit 0 should return all, got %d", got)
	}
}

func TestOperatorMatches(t *testing.T) {
	cases := []struct {
		op        models.Operator
		value     float64
		threshold float64
		want      bool
	}{
		{models.OpGT, 5, 4, true},
		{models.OpGT, 4, 4, false},
		{models.OpLT, 3, 4, true},
		{models.OpLT, 4, 4, false},
		{models.OpGTE, 4, 4, true},
		{models.OpLTE, 4, 4, true},
		{models.OpLTE, 5, 4, false},
		{models.OpEQ, 4, 4, true},
		{models.OpEQ, 4.1, 4, false},
		{models.Operator("??"), 4, 4, false},
	}
	for _, tc := range cases {
		if got := tc.op.Matches(tc.value, tc.threshold); got != tc.want {
			t.Fatalf("%s(%v,%v): expected %v", tc.op, tc.value, tc.threshold, tc.want)
		}
	}
}
