package antifragile

import (
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

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(cfg, l, nopMetrics{})
}

func sig(id string, typ models.SignalType, sev models.Severity) models.Signal {
	return models.Signal{ID: id, Type: typ, Severity: sev, Source: "test", Timestamp: time.Now()}
}

func TestStressLevelWeightsAndClamp(t *testing.T) {
	cases := []struct {
		name    string
		signals []models.Signal
		want    float64
	}{
		{"empty", nil, 0},
		{"single low", []models.Signal{sig("a", models.SignalEmergency, models.SeverityLow)}, 10},
		{"mixed", []models.Signal{
			sig("a", models.SignalEmergency, models.SeverityLow),
			sig("b", models.SignalEmergency, models.SeverityMedium),
			sig("c", models.SignalEmergency, models.SeverityHigh),
			sig("d", models.SignalEmergency, models.SeverityCritical),
		}, 100},
		{"clamped", []models.Signal{
			sig("a", models.SignalEmergency, models.SeverityCritical),
			sig("b", models.SignalEmergency, models.SeverityCritical),
			sig("c", models.SignalEmergency, models.SeverityCritical),
		}, 100},
	}
	for _, tc := range cases {
		if got := StressLevel(tc.signals); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPatternActivatesAboveMinStress(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.5,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID:          "emergency-capacity",
			Trigger:     models.TriggerConditions{MinStressLevel: 30},
			Adaptations: []models.AdaptationKind{models.AdaptCapacityScaling},
		}},
	})

	// below the floor: no activation
	res := e.ProcessStressEvent([]models.Signal{sig("a", models.SignalEmergency, models.SeverityMedium)})
	if len(res.ActivatedPatterns) != 0 {
		t.Fatalf("pattern activated below stress floor")
	}

	// at the floor: activates
	res = e.ProcessStressEvent([]models.Signal{sig("b", models.SignalEmergency, models.SeverityHigh)})
	if len(res.ActivatedPatterns) != 1 || res.ActivatedPatterns[0] != "emergency-capacity" {
		t.Fatalf("expected activation, got %v", res.ActivatedPatterns)
	}
	if len(res.Records) != 1 || !res.Records[0].Success {
		t.Fatalf("capacity scaling on an emergency batch must succeed: %+v", res.Records)
	}
	if res.Event == nil || res.Event.StressLevel != 30 {
		t.Fatalf("missing or wrong stress event: %+v", res.Event)
	}
}

func TestCooldownPreventsRepeatActivation(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.1,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID:          "p1",
			Trigger:     models.TriggerConditions{MinStressLevel: 10},
			Adaptations: []models.AdaptationKind{models.AdaptStressLearning},
		}},
	})

	batch := []models.Signal{sig("a", models.SignalEmergency, models.SeverityCritical)}
	if res := e.ProcessStressEvent(batch); len(res.ActivatedPatterns) != 1 {
		t.Fatalf("first activation failed")
	}
	if res := e.ProcessStressEvent(batch); len(res.ActivatedPatterns) != 0 {
		t.Fatalf("cooldown did not suppress second activation")
	}

	st := e.Status()
	if len(st.ActivePatterns) != 1 {
		t.Fatalf("pattern should stay active during cooldown, got %d", len(st.ActivePatterns))
	}
}

func TestRequiredSignalTypesGate(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.1,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID: "env-only",
			Trigger: models.TriggerConditions{
				MinStressLevel:      10,
				RequiredSignalTypes: []models.SignalType{models.SignalEnvironmental},
			},
			Adaptations: []models.AdaptationKind{models.AdaptStressLearning},
		}},
	})

	res := e.ProcessStressEvent([]models.Signal{sig("a", models.SignalEmergency, models.SeverityCritical)})
	if len(res.ActivatedPatterns) != 0 {
		t.Fatalf("activated without required signal type")
	}

	res = e.ProcessStressEvent([]models.Signal{
		sig("b", models.SignalEnvironmental, models.SeverityCritical),
	})
	if len(res.ActivatedPatterns) != 1 {
		t.Fatalf("expected activation with required type present")
	}
}

func TestDurationThresholdRequiresSustainedStress(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.1,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID: "sustained",
			Trigger: models.TriggerConditions{
				MinStressLevel:    10,
				DurationThreshold: 30 * time.Millisecond,
			},
			Adaptations: []models.AdaptationKind{models.AdaptStressLearning},
		}},
	})

	batch := []models.Signal{sig("a", models.SignalEmergency, models.SeverityCritical)}

	// first observation only starts the clock
	if res := e.ProcessStressEvent(batch); len(res.ActivatedPatterns) != 0 {
		t.Fatalf("activated before duration threshold")
	}
	time.Sleep(40 * time.Millisecond)
	if res := e.ProcessStressEvent(batch); len(res.ActivatedPatterns) != 1 {
		t.Fatalf("expected activation after sustained stress")
	}

	// dropping below the floor resets the clock
	e2 := testEngine(t, Config{
		MinSuccessRate:     0.1,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID: "sustained",
			Trigger: models.TriggerConditions{
				MinStressLevel:    50,
				DurationThreshold: 30 * time.Millisecond,
			},
			Adaptations: []models.AdaptationKind{models.AdaptStressLearning},
		}},
	})
	high := []models.Signal{
		sig("a", models.SignalEmergency, models.SeverityCritical),
		sig("b", models.SignalEmergency, models.SeverityCritical),
	}
	e2.ProcessStressEvent(high)
	e2.ProcessStressEvent(nil) // stress drops to zero
	time.Sleep(40 * time.Millisecond)
	if res := e2.ProcessStressEvent(high); len(res.ActivatedPatterns) != 0 {
		t.Fatalf("duration clock was not reset by the quiet window")
	}
}

func TestSuccessRateGateBlocksFailingPattern(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.5,
		ActivationCooldown: time.Millisecond,
		HistoryRetention:   time.Hour,
		Patterns: []models.Pattern{{
			ID:      "redundancy",
			Trigger: models.TriggerConditions{MinStressLevel: 10},
			// fails unless the batch has critical or multiple high signals
			Adaptations: []models.AdaptationKind{models.AdaptRedundancyEnhancement},
		}},
	})

	weak := []models.Signal{sig("a", models.SignalEmergency, models.SeverityMedium)}
	res := e.ProcessStressEvent(weak)
	if len(res.ActivatedPatterns) != 1 {
		t.Fatalf("first activation should pass the gate")
	}
	if res.Records[0].Success {
		t.Fatalf("redundancy on a weak batch should fail")
	}

	time.Sleep(5 * time.Millisecond)
	if res := e.ProcessStressEvent(weak); len(res.ActivatedPatterns) != 0 {
		t.Fatalf("success-rate gate did not block a 0%% pattern")
	}
}

func TestStatusScoreStaysBounded(t *testing.T) {
	var patterns []models.Pattern
	for _, id := range []string{"p1", "p2", "p3"} {
		patterns = append(patterns, models.Pattern{
			ID:          id,
			Trigger:     models.TriggerConditions{MinStressLevel: 10},
			Adaptations: []models.AdaptationKind{models.AdaptStressLearning, models.AdaptEfficiencyImprovement},
		})
	}
	e := testEngine(t, Config{
		MinSuccessRate:     0.1,
		ActivationCooldown: time.Millisecond,
		HistoryRetention:   time.Hour,
		Patterns:           patterns,
	})

	batch := []models.Signal{sig("a", models.SignalEmergency, models.SeverityCritical)}
	for i := 0; i < 30; i++ {
		e.ProcessStressEvent(batch)
		time.Sleep(2 * time.Millisecond)
	}

	st := e.Status()
	if st.Score < 0 || st.Score > 100 {
		t.Fatalf("score out of bounds: %v", st.Score)
	}
	if st.PatternCount != 3 {
		t.Fatalf("expected 3 patterns, got %d", st.PatternCount)
	}
	if st.SuccessRate != 1 {
		t.Fatalf("all adaptations succeed, rate should be 1, got %v", st.SuccessRate)
	}
}

func TestStressEventRecordsBatch(t *testing.T) {
	e := testEngine(t, Config{
		MinSuccessRate:     0.5,
		ActivationCooldown: time.Hour,
		HistoryRetention:   time.Hour,
	})

	var sunk *models.StressEvent
	e.SetEventSink(func(ev *models.StressEvent) { sunk = ev })

	batch := []models.Signal{
		sig("s1", models.SignalEmergency, models.SeverityCritical),
		sig("s2", models.SignalMaintenance, models.SeverityLow),
	}
	res := e.ProcessStressEvent(batch)

	if sunk == nil || sunk.ID != res.Event.ID {
		t.Fatalf("event sink did not receive the stress event")
	}
	if len(sunk.TriggerSignals) != 2 || sunk.TriggerSignals[0] != "s1" {
		t.Fatalf("trigger signals not recorded: %v", sunk.TriggerSignals)
	}
	if sunk.Performance.ErrorRate < 0 || sunk.Performance.ErrorRate > 1 {
		t.Fatalf("error rate out of bounds: %v", sunk.Performance.ErrorRate)
	}
	if !sunk.Outcome.Success {
		t.Fatalf("no-adaptation event should report success")
	}
}
