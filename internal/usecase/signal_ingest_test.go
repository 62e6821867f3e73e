package usecase

import (
	"context"
	"testing"

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

type fakeRouting struct {
	batches [][]models.Signal
}

func (f *fakeRouting) Route(_ context.Context, signals []models.Signal) router.RoutingResult {
	f.batches = append(f.batches, signals)
	return router.RoutingResult{Processed: len(signals)}
}

func TestDecodeSignalsEnvelope(t *testing.T) {
	data := []byte(`{"signals":[{"id":"s1","type":"EMERGENCY","severity":"HIGH","source":"ops"}]}`)
	signals, err := decodeSignals(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(signals) != 1 || signals[0].ID != "s1" || signals[0].Type != models.SignalEmergency {
		t.Fatalf("unexpected decode %+v", signals)
	}
}

func TestDecodeSignalsBareArray(t *testing.T) {
	data := []byte(`[{"id":"s1","type":"MAINTENANCE","severity":"LOW","source":"ops"},{"id":"s2","type":"EMERGENCY","severity":"CRITICAL","source":"ops"}]`)
	signals, err := decodeSignals(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(signals) != 2 || signals[1].Severity != models.SeverityCritical {
		t.Fatalf("unexpected decode %+v", signals)
	}
}

func TestDecodeSignalsEmptyEnvelope(t *testing.T) {
	signals, err := decodeSignals([]byte(`{"signals":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected empty batch, got %+v", signals)
	}
}

func TestDecodeSignalsRejectsJunk(t *testing.T) {
	for _, data := range []string{`not json`, `{"signals":"nope"}`, `42`} {
		if _, err := decodeSignals([]byte(data)); err == nil {
			t.Fatalf("expected decode error for %q", data)
		}
	}
}

func TestHandleRoutesDecodedBatch(t *testing.T) {
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	routing := &fakeRouting{}
	h := NewKafkaSignalHandler("resilience.signals", routing, l, nopMetrics{})

	if h.Topic() != "resilience.signals" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}

	data := []byte(`{"signals":[{"id":"s1","type":"EMERGENCY","severity":"HIGH","source":"ops"}]}`)
	if err := h.Handle(context.Background(), data); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(routing.batches) != 1 || len(routing.batches[0]) != 1 {
		t.Fatalf("batch not routed: %+v", routing.batches)
	}

	// decode failures surface as errors so the consumer can retry
	if err := h.Handle(context.Background(), []byte(`garbage`)); err == nil {
		t.Fatalf("expected error for undecodable payload")
	}

	// empty batches are dropped without touching the router
	if err := h.Handle(context.Background(), []byte(`[]`)); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(routing.batches) != 1 {
		t.Fatalf("empty batch reached the router")
	}
}
