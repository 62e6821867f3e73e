package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarginFlow/internal/domain/models"
	"MarginFlow/internal/router"
)

type countingMetrics struct {
	mu       sync.Mutex
	filtered int
	errors   int
}

func (m *countingMetrics) RecordSignal(string, string)               {}
func (m *countingMetrics) RecordFiltered(string)                     { m.mu.Lock(); m.filtered++; m.mu.Unlock() }
func (m *countingMetrics) RecordAllocation(string, float64)          {}
func (m *countingMetrics) RecordDeployment(string, float64)          {}
func (m *countingMetrics) RecordRecovery(string)                     {}
func (m *countingMetrics) RecordError(string)                        { m.mu.Lock(); m.errors++; m.mu.Unlock() }
func (m *countingMetrics) RecordLatency(string, float64)             {}
func (m *countingMetrics) SetPool(string, float64, float64, float64) {}
func (m *countingMetrics) SetStressLevel(float64)                    {}
func (m *countingMetrics) SetOverallScore(float64)                   {}
func (m *countingMetrics) RecordAlert(string)                        {}

func (m *countingMetrics) filteredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filtered
}

type collectingRouting struct {
	mu      sync.Mutex
	batches [][]models.Signal
}

func (r *collectingRouting) Route(_ context.Context, signals []models.Signal) router.RoutingResult {
	cp := make([]models.Signal, len(signals))
	copy(cp, signals)
	r.mu.Lock()
	r.batches = append(r.batches, cp)
	r.mu.Unlock()
	return router.RoutingResult{Processed: len(signals)}
}

func (r *collectingRouting) snapshot() [][]models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]models.Signal, len(r.batches))
	copy(out, r.batches)
	return out
}

func pipelineSignal(id, source string) *models.Signal {
	return &models.Signal{
		ID: id, Type: models.SignalEmergency, Severity: models.SeverityLow,
		Source: source, Timestamp: time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestPipelineFlushesFullBatch(t *testing.T) {
	rt := &collectingRouting{}
	p := NewSignalPipeline(rt, &countingMetrics{},
		WithBatchSize(3),
		WithFlushInterval(time.Hour), // only size-based flushes
	)
	p.Start(context.Background())
	defer p.Stop()

	for i, id := range []string{"a", "b", "c"} {
		if err := p.Offer(pipelineSignal(id, "src-"+id)); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(rt.snapshot()) == 1 })
	batch := rt.snapshot()[0]
	if len(batch) != 3 || batch[0].ID != "a" || batch[2].ID != "c" {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestPipelineFlushesPartialBatchOnInterval(t *testing.T) {
	rt := &collectingRouting{}
	p := NewSignalPipeline(rt, &countingMetrics{},
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
	)
	p.Start(context.Background())
	defer p.Stop()

	if err := p.Offer(pipelineSignal("solo", "src")); err != nil {
		t.Fatalf("offer: %v", err)
	}

	waitFor(t, func() bool { return len(rt.snapshot()) == 1 })
	if got := rt.snapshot()[0]; len(got) != 1 || got[0].ID != "solo" {
		t.Fatalf("unexpected batch %+v", got)
	}
}

func TestPipelineThrottlesPerSource(t *testing.T) {
	rt := &collectingRouting{}
	metrics := &countingMetrics{}
	p := NewSignalPipeline(rt, metrics,
		WithMaxSourceRPS(1),
		WithFlushInterval(time.Hour),
	)

	// burst from one source: only the first signal passes the throttle
	for i := 0; i < 5; i++ {
		if err := p.Offer(pipelineSignal("x", "noisy")); err != nil {
			t.Fatalf("offer: %v", err)
		}
	}
	if metrics.filteredCount() != 4 {
		t.Fatalf("expected 4 throttled, got %d", metrics.filteredCount())
	}

	// an independent source is unaffected
	if err := p.Offer(pipelineSignal("y", "quiet")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if metrics.filteredCount() != 4 {
		t.Fatalf("independent source was throttled")
	}
}

func TestPipelineStopFlushesRemainder(t *testing.T) {
	rt := &collectingRouting{}
	p := NewSignalPipeline(rt, &countingMetrics{},
		WithBatchSize(100),
		WithFlushInterval(time.Hour),
	)
	p.Start(context.Background())

	if err := p.Offer(pipelineSignal("pending", "src")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	// give the loop a moment to drain the buffer into the batch
	waitFor(t, func() bool { return len(p.bufCh) == 0 })
	p.Stop()

	waitFor(t, func() bool { return len(rt.snapshot()) == 1 })
}

func TestPipelineRejectsNilSignal(t *testing.T) {
	p := NewSignalPipeline(&collectingRouting{}, &countingMetrics{})
	if err := p.Offer(nil); err == nil {
		t.Fatalf("expected error for nil signal")
	}
}
