package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarginFlow/internal/domain/models"
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

type recordingSubscriber struct {
	name    string
	err     error
	doPanic bool

	mu       sync.Mutex
	received [][]models.Signal
}

func (s *recordingSubscriber) Name() string { return s.name }

func (s *recordingSubscriber) OnSignals(_ context.Context, signals []models.Signal) error {
	if s.doPanic {
		panic("subscriber exploded")
	}
	s.mu.Lock()
	s.received = append(s.received, signals)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSubscriber) batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func testRouter(t *testing.T) *Router {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(l, nopMetrics{})
}

func validSignal(id string, sev models.Severity) models.Signal {
	return models.Signal{
		ID: id, Type: models.SignalEmergency, Severity: sev,
		Source: "test", Timestamp: time.Now(),
	}
}

func TestRouteFiltersInvalidSignals(t *testing.T) {
	r := testRouter(t)
	sub := &recordingSubscriber{name: "sub"}
	r.Register(sub)

	batch := []models.Signal{
		validSignal("s1", models.SeverityLow),
		{ID: "", Type: models.SignalEmergency, Severity: models.SeverityLow},                // empty id
		{ID: "s3", Type: models.SignalType("WEATHER"), Severity: models.SeverityLow},        // unknown type
		{ID: "s4", Type: models.SignalEmergency, Severity: models.Severity("EXTREME")},      // unknown severity
		{ID: "s5", Type: models.SignalEmergency, Severity: models.SeverityLow, Strength: -1}, // negative strength
		validSignal("s6", models.SeverityHigh),
	}
	res := r.Route(context.Background(), batch)

	if res.Processed != 2 || res.Filtered != 4 {
		t.Fatalf("expected 2 processed / 4 filtered, got %d / %d", res.Processed, res.Filtered)
	}
	if sub.batches() != 1 {
		t.Fatalf("expected one delivery, got %d", sub.batches())
	}
	if got := len(sub.received[0]); got != 2 {
		t.Fatalf("expected 2 signals delivered, got %d", got)
	}
}

func TestRouteAllFilteredSkipsDelivery(t *testing.T) {
	r := testRouter(t)
	sub := &recordingSubscriber{name: "sub"}
	r.Register(sub)

	res := r.Route(context.Background(), []models.Signal{{ID: ""}})
	if res.Processed != 0 || res.Filtered != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if sub.batches() != 0 {
		t.Fatalf("filtered-only batch must not reach subscribers")
	}
}

func TestRouteIsolatesFailingSubscribers(t *testing.T) {
	r := testRouter(t)
	healthy := &recordingSubscriber{name: "healthy"}
	failing := &recordingSubscriber{name: "failing", err: errors.New("db down")}
	panicking := &recordingSubscriber{name: "panicking", doPanic: true}
	r.Register(failing)
	r.Register(panicking)
	r.Register(healthy)

	res := r.Route(context.Background(), []models.Signal{validSignal("s1", models.SeverityCritical)})

	if res.Processed != 1 {
		t.Fatalf("expected processed=1, got %d", res.Processed)
	}
	if healthy.batches() != 1 {
		t.Fatalf("healthy subscriber missed delivery")
	}
	if len(res.SubscriberErrors) != 2 {
		t.Fatalf("expected 2 subscriber errors, got %v", res.SubscriberErrors)
	}
	if res.SubscriberErrors["failing"] != "db down" {
		t.Fatalf("missing error for failing subscriber: %v", res.SubscriberErrors)
	}
	if _, ok := res.SubscriberErrors["panicking"]; !ok {
		t.Fatalf("panic was not converted to an error: %v", res.SubscriberErrors)
	}
}

func TestRouteDeliversIndependentCopies(t *testing.T) {
	r := testRouter(t)
	a := &recordingSubscriber{name: "a"}
	b := &recordingSubscriber{name: "b"}
	r.Register(a)
	r.Register(b)

	r.Route(context.Background(), []models.Signal{validSignal("s1", models.SeverityMedium)})

	a.received[0][0].Description = "mutated"
	if b.received[0][0].Description == "mutated" {
		t.Fatalf("subscribers share a signal slice")
	}
}

func TestRouteDefaultsStatusToActive(t *testing.T) {
	r := testRouter(t)
	sub := &recordingSubscriber{name: "sub"}
	r.Register(sub)

	r.Route(context.Background(), []models.Signal{validSignal("s1", models.SeverityLow)})
	if got := sub.received[0][0].Status; got != models.SignalActive {
		t.Fatalf("expected ACTIVE status, got %q", got)
	}
}

func TestStatsAccumulateAcrossCalls(t *testing.T) {
	r := testRouter(t)
	r.Register(&recordingSubscriber{name: "sub"})

	r.Route(context.Background(), []models.Signal{
		validSignal("s1", models.SeverityLow),
		validSignal("s2", models.SeverityHigh),
		{ID: ""},
	})
	r.Route(context.Background(), []models.Signal{
		validSignal("s3", models.SeverityHigh),
	})

	st := r.Stats()
	if st.Processed != 3 || st.Filtered != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.SeverityDistribution[models.SeverityHigh] != 2 {
		t.Fatalf("expected 2 HIGH signals, got %d", st.SeverityDistribution[models.SeverityHigh])
	}
	if st.SeverityDistribution[models.SeverityLow] != 1 {
		t.Fatalf("expected 1 LOW signal, got %d", st.SeverityDistribution[models.SeverityLow])
	}
}
