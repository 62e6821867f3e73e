package margin

import (
	"errors"
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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Domain == "" {
		cfg.Domain = "material"
	}
	if cfg.Type == "" {
		cfg.Type = models.MarginMaterial
	}
	cfg.Enabled = true
	return NewManager(cfg, testLogger(t), nopMetrics{})
}

func TestAllocateDeployRecoverLifecycle(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	alloc, err := m.Allocate("op-1", 40, models.SeverityMedium, "scheduled job")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if alloc.State != models.StateAllocated {
		t.Fatalf("expected ALLOCATED, got %s", alloc.State)
	}

	dep, err := m.Deploy(alloc.ID, 25, "partial use")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if dep.Amount != 25 {
		t.Fatalf("unexpected deployment amount %v", dep.Amount)
	}

	st := m.Status()
	if st.TotalAllocated != 40 || st.TotalDeployed != 25 {
		t.Fatalf("pool mismatch: allocated=%v deployed=%v", st.TotalAllocated, st.TotalDeployed)
	}
	if st.AvailableMargin != 60 {
		t.Fatalf("expected available 60, got %v", st.AvailableMargin)
	}

	recovered, err := m.Recover(alloc.ID, "done")
	if err != nil || !recovered {
		t.Fatalf("recover: %v %v", recovered, err)
	}

	st = m.Status()
	if st.TotalAllocated != 0 || st.TotalDeployed != 0 {
		t.Fatalf("pool not released: %+v", st)
	}
	if st.ActiveAllocations != 0 {
		t.Fatalf("expected no active allocations")
	}
}

func TestAllocateRejectsInvalidRequests(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	if _, err := m.Allocate("op", 0, models.SeverityLow, ""); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero amount, got %v", err)
	}
	if _, err := m.Allocate("op", -5, models.SeverityLow, ""); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for negative amount, got %v", err)
	}
	if _, err := m.Allocate("op", 10, models.Severity("URGENT"), ""); !errors.Is(err, models.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown priority, got %v", err)
	}
}

func TestAllocateInsufficientCapacity(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	if _, err := m.Allocate("op-1", 80, models.SeverityHigh, ""); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := m.Allocate("op-2", 30, models.SeverityHigh, ""); !errors.Is(err, models.ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	// pool must be unchanged after rejection
	if st := m.Status(); st.TotalAllocated != 80 {
		t.Fatalf("rejected allocation mutated pool: %v", st.TotalAllocated)
	}
}

func TestEmergencyReserveBlocksManualAllocation(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100, EmergencyReserve: 30})

	if _, err := m.Allocate("op-1", 75, models.SeverityLow, ""); !errors.Is(err, models.ErrInsufficientCapacity) {
		t.Fatalf("expected reserve to block manual allocation, got %v", err)
	}
	if _, err := m.Allocate("op-1", 70, models.SeverityLow, ""); err != nil {
		t.Fatalf("allocation within reserve limit failed: %v", err)
	}

	// emergency auto-allocation may use the reserve
	sig := models.Signal{
		ID: "sig-1", Type: models.SignalEmergency, Severity: models.SeverityCritical,
		Source: "test", Timestamp: time.Now(),
	}
	m2 := newTestManager(t, Config{Capacity: 100, EmergencyReserve: 30, SeverityUnit: 10})
	if _, err := m2.Allocate("op-1", 70, models.SeverityLow, ""); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := m2.ProcessSignals([]models.Signal{sig}); err != nil {
		t.Fatalf("process signals: %v", err)
	}
	// CRITICAL is 8x the unit: 80 > 30 remaining, so it must be rejected even
	// for emergencies without a surge threshold
	if st := m2.Status(); st.TotalAllocated != 70 {
		t.Fatalf("expected rejection at hard capacity, allocated=%v", st.TotalAllocated)
	}
}

func TestSurgeThresholdAllowsEmergencyOverCapacity(t *testing.T) {
	m := newTestManager(t, Config{Domain: "surge", Capacity: 40, SurgeThreshold: 1.5, SeverityUnit: 5})

	if _, err := m.Allocate("op-1", 40, models.SeverityLow, ""); err != nil {
		t.Fatalf("allocate to capacity: %v", err)
	}
	// manual request beyond capacity is rejected
	if _, err := m.Allocate("op-2", 5, models.SeverityLow, ""); !errors.Is(err, models.ErrInsufficientCapacity) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}

	sig := models.Signal{
		ID: "sig-1", Type: models.SignalEmergency, Severity: models.SeverityMedium,
		Source: "test", Timestamp: time.Now(),
	}
	if err := m.ProcessSignals([]models.Signal{sig}); err != nil {
		t.Fatalf("process signals: %v", err)
	}
	// MEDIUM is 2x unit = 10; 40+10 <= 40*1.5
	if st := m.Status(); st.TotalAllocated != 50 {
		t.Fatalf("expected surge allocation to 50, got %v", st.TotalAllocated)
	}
}

func TestDeployOverRemainderFails(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	alloc, err := m.Allocate("op-1", 50, models.SeverityHigh, "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := m.Deploy(alloc.ID, 30, ""); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if _, err := m.Deploy(alloc.ID, 30, ""); !errors.Is(err, models.ErrOverDeployment) {
		t.Fatalf("expected ErrOverDeployment, got %v", err)
	}
	// exact remainder is fine
	if _, err := m.Deploy(alloc.ID, 20, ""); err != nil {
		t.Fatalf("deploy remainder: %v", err)
	}
}

func TestDeployAndRecoverUnknownAllocation(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	if _, err := m.Deploy("missing", 10, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Recover("missing", ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecoveredAllocationIsGone(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100})

	alloc, _ := m.Allocate("op-1", 20, models.SeverityLow, "")
	if _, err := m.Recover(alloc.ID, ""); err != nil {
		t.Fatalf("recover: %v", err)
	}
	// terminal: second recover and further deploys report not found
	if _, err := m.Recover(alloc.ID, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after recovery, got %v", err)
	}
	if _, err := m.Deploy(alloc.ID, 5, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after recovery, got %v", err)
	}
}

func TestDisabledDomainRejectsAllocation(t *testing.T) {
	cfg := Config{Domain: "financial", Type: models.MarginFinancial, Capacity: 100}
	m := NewManager(cfg, testLogger(t), nopMetrics{})

	if _, err := m.Allocate("op-1", 10, models.SeverityLow, ""); !errors.Is(err, models.ErrDomainDisabled) {
		t.Fatalf("expected ErrDomainDisabled, got %v", err)
	}
	// signals against a disabled domain are a silent no-op
	sig := models.Signal{ID: "s", Type: models.SignalEmergency, Severity: models.SeverityHigh, Source: "t", Timestamp: time.Now()}
	if err := m.ProcessSignals([]models.Signal{sig}); err != nil {
		t.Fatalf("process signals on disabled domain: %v", err)
	}
	if st := m.Status(); st.TotalAllocated != 0 {
		t.Fatalf("disabled domain allocated margin")
	}
}

func TestProcessSignalsIgnoresNonEmergencies(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100, SeverityUnit: 10})

	signals := []models.Signal{
		{ID: "s1", Type: models.SignalMaintenance, Severity: models.SeverityCritical, Source: "t", Timestamp: time.Now()},
		{ID: "s2", Type: models.SignalRiskEscalation, Severity: models.SeverityMedium, Source: "t", Timestamp: time.Now()},
		{ID: "s3", Type: models.SignalRiskEscalation, Severity: models.SeverityHigh, Source: "t", Timestamp: time.Now()},
	}
	if err := m.ProcessSignals(signals); err != nil {
		t.Fatalf("process signals: %v", err)
	}
	// only s3 qualifies: RISK_ESCALATION at HIGH, 4x unit
	if st := m.Status(); st.TotalAllocated != 40 {
		t.Fatalf("expected 40 allocated, got %v", st.TotalAllocated)
	}
}

func TestEmergencySignalAutoAllocates(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100, SeverityUnit: 10})

	before := m.Status()
	sig := models.Signal{
		ID: "sig-crit", Type: models.SignalEmergency, Severity: models.SeverityCritical,
		Source: "test", Timestamp: time.Now(),
	}
	if err := m.ProcessSignals([]models.Signal{sig}); err != nil {
		t.Fatalf("process signals: %v", err)
	}

	st := m.Status()
	if st.ActiveAllocations <= before.ActiveAllocations {
		t.Fatalf("expected auto-allocation, active=%d", st.ActiveAllocations)
	}
	if st.TotalAllocated != 80 { // CRITICAL is 8x the unit
		t.Fatalf("expected 80 allocated, got %v", st.TotalAllocated)
	}
	if len(st.RecentEvents) == 0 {
		t.Fatalf("auto-allocation left no event trail")
	}
	if st.RecentEvents[len(st.RecentEvents)-1].Kind != "auto_allocate" {
		t.Fatalf("unexpected event kind %q", st.RecentEvents[len(st.RecentEvents)-1].Kind)
	}
}

func TestTTLSweepRecoversExpired(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 100, AllocationTTL: 10 * time.Millisecond})

	alloc, err := m.Allocate("op-1", 30, models.SeverityLow, "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	m.sweepExpired()

	if st := m.Status(); st.TotalAllocated != 0 {
		t.Fatalf("expected ttl sweep to release margin, allocated=%v", st.TotalAllocated)
	}
	if _, err := m.Recover(alloc.ID, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected allocation gone after sweep, got %v", err)
	}
}

func TestPoolInvariantAcrossMixedOperations(t *testing.T) {
	m := newTestManager(t, Config{Capacity: 200})

	var ids []string
	for i := 0; i < 5; i++ {
		alloc, err := m.Allocate("op", 20, models.SeverityMedium, "")
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		ids = append(ids, alloc.ID)
	}
	for _, id := range ids[:3] {
		if _, err := m.Deploy(id, 10, ""); err != nil {
			t.Fatalf("deploy: %v", err)
		}
	}
	for _, id := range ids[:2] {
		if _, err := m.Recover(id, ""); err != nil {
			t.Fatalf("recover: %v", err)
		}
	}

	st := m.Status()
	if st.TotalDeployed > st.TotalAllocated || st.TotalAllocated > st.Capacity {
		t.Fatalf("invariant violated: deployed=%v allocated=%v capacity=%v",
			st.TotalDeployed, st.TotalAllocated, st.Capacity)
	}
	if st.TotalAllocated != 60 || st.TotalDeployed != 10 {
		t.Fatalf("unexpected pool: allocated=%v deployed=%v", st.TotalAllocated, st.TotalDeployed)
	}
}
