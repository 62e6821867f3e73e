package margin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/logger"

	"github.com/google/uuid"
)

// Config holds one domain manager's construction parameters.
type Config struct {
	Domain  string
	Type    models.MarginType
	Enabled bool

	// Capacity is the baseline available margin for the domain.
	Capacity float64
	// EmergencyReserve is held back from manual allocations and usable only
	// by signal-driven auto-allocation.
	EmergencyReserve float64
	// SurgeThreshold > 1 lets emergency allocations exceed capacity up to
	// capacity*SurgeThreshold (surge domain soft capacity).
	SurgeThreshold float64
	// SeverityUnit is the base amount for the severity-derived allocation
	// size: LOW=1x, MEDIUM=2x, HIGH=4x, CRITICAL=8x.
	SeverityUnit float64

	MaxConcurrentAllocations int
	UpdateInterval           time.Duration
	// AllocationTTL > 0 auto-recovers allocations older than the TTL on the
	// update ticker. Zero disables expiry: recovery stays explicit.
	AllocationTTL time.Duration
	// Currency applies to the financial domain only.
	Currency string

	RecentEventsSize int
}

// Manager owns one resource pool and its allocation lifecycle.
type Manager struct {
	cfg     Config
	logger  *logger.Logger
	metrics domrepo.Metrics

	mu          sync.Mutex
	pool        pool
	allocations map[string]*models.Allocation
	deployments map[string][]models.Deployment
	events      []models.MarginEvent

	stopOnce sync.Once
	stopCh   chan struct{}
}

// severityMultiplier is the monotonic severity→amount mapping.
var severityMultiplier = map[models.Severity]float64{
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     4,
	models.SeverityCritical: 8,
}

// NewManager creates a domain manager. Capacity and unit sizing come from
// configuration; nothing is hardcoded per domain here.
func NewManager(cfg Config, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	if cfg.SeverityUnit <= 0 {
		cfg.SeverityUnit = 1
	}
	if cfg.MaxConcurrentAllocations <= 0 {
		cfg.MaxConcurrentAllocations = 100
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 30 * time.Second
	}
	if cfg.RecentEventsSize <= 0 {
		cfg.RecentEventsSize = 50
	}
	return &Manager{
		cfg:         cfg,
		logger:      l,
		metrics:     metrics,
		pool:        pool{capacity: cfg.Capacity},
		allocations: make(map[string]*models.Allocation),
		deployments: make(map[string][]models.Deployment),
		stopCh:      make(chan struct{}),
	}
}

// Domain returns the domain name.
func (m *Manager) Domain() string { return m.cfg.Domain }

// Name implements repository.Subscriber.
func (m *Manager) Name() string { return "margin:" + m.cfg.Domain }

// Allocate reserves margin for an operation.
func (m *Manager) Allocate(operationID string, amount float64, priority models.Severity, reason string) (*models.Allocation, error) {
	return m.allocate(operationID, amount, priority, reason, false)
}

func (m *Manager) allocate(operationID string, amount float64, priority models.Severity, reason string, emergency bool) (*models.Allocation, error) {
	if !m.cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", models.ErrDomainDisabled, m.cfg.Domain)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %v", models.ErrInvalidRequest, amount)
	}
	if !priority.Known() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidRequest, priority)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.allocations) >= m.cfg.MaxConcurrentAllocations {
		return nil, fmt.Errorf("%w: %s at max concurrent allocations (%d)",
			models.ErrInsufficientCapacity, m.cfg.Domain, m.cfg.MaxConcurrentAllocations)
	}
	limit := m.allocationLimit(emergency)
	if m.pool.allocated+amount > limit {
		return nil, fmt.Errorf("%w: %s requested %v, remaining %v",
			models.ErrInsufficientCapacity, m.cfg.Domain, amount, limit-m.pool.allocated)
	}

	alloc := &models.Allocation{
		ID:          uuid.NewString(),
		Domain:      m.cfg.Domain,
		Type:        m.cfg.Type,
		Amount:      amount,
		OperationID: operationID,
		Priority:    priority,
		Reason:      reason,
		State:       models.StateAllocated,
		CreatedAt:   time.Now(),
	}
	m.allocations[alloc.ID] = alloc
	m.pool.allocated += amount

	kind := "allocate"
	if emergency {
		kind = "auto_allocate"
	}
	m.recordEvent(models.MarginEvent{
		Kind: kind, AllocationID: alloc.ID, Amount: amount, Reason: reason, Timestamp: alloc.CreatedAt,
	})
	m.metrics.RecordAllocation(m.cfg.Domain, amount)
	m.publishPoolGauges()

	m.logger.Info("margin allocated",
		logger.String("domain", m.cfg.Domain),
		logger.String("allocation_id", alloc.ID),
		logger.String("operation_id", operationID),
		logger.Any("amount", amount),
		logger.String("priority", string(priority)))
	return cloneAllocation(alloc), nil
}

// allocationLimit is the pool ceiling for the request class. Manual requests
// cannot touch the emergency reserve; emergency requests on a surge domain may
// exceed capacity up to the surge threshold.
func (m *Manager) allocationLimit(emergency bool) float64 {
	limit := m.cfg.Capacity
	if emergency {
		if m.cfg.SurgeThreshold > 1 {
			limit = m.cfg.Capacity * m.cfg.SurgeThreshold
		}
		return limit
	}
	limit -= m.cfg.EmergencyReserve
	if limit < 0 {
		limit = 0
	}
	return limit
}

// Deploy consumes part of an allocation's amount.
func (m *Manager) Deploy(allocationID string, amount float64, reason string) (*models.Deployment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %v", models.ErrInvalidRequest, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, ok := m.allocations[allocationID]
	if !ok {
		return nil, fmt.Errorf("%w: allocation %s", models.ErrNotFound, allocationID)
	}
	if amount > alloc.Remaining() {
		return nil, fmt.Errorf("%w: requested %v, remainder %v", models.ErrOverDeployment, amount, alloc.Remaining())
	}

	dep := models.Deployment{
		ID:           uuid.NewString(),
		AllocationID: allocationID,
		Amount:       amount,
		Reason:       reason,
		Timestamp:    time.Now(),
	}
	alloc.Deployed += amount
	alloc.State = models.StatePartiallyDeployed
	m.deployments[allocationID] = append(m.deployments[allocationID], dep)
	m.pool.deployed += amount

	m.recordEvent(models.MarginEvent{
		Kind: "deploy", AllocationID: allocationID, Amount: amount, Reason: reason, Timestamp: dep.Timestamp,
	})
	m.metrics.RecordDeployment(m.cfg.Domain, amount)
	m.publishPoolGauges()

	m.logger.Info("margin deployed",
		logger.String("domain", m.cfg.Domain),
		logger.String("allocation_id", allocationID),
		logger.Any("amount", amount))
	d := dep
	return &d, nil
}

// Recover releases the allocation's undeployed remainder and terminates it.
func (m *Manager) Recover(allocationID string, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoverLocked(allocationID, reason, "recover")
}

func (m *Manager) recoverLocked(allocationID, reason, kind string) (bool, error) {
	alloc, ok := m.allocations[allocationID]
	if !ok {
		return false, fmt.Errorf("%w: allocation %s", models.ErrNotFound, allocationID)
	}

	remaining := alloc.Remaining()
	alloc.State = models.StateRecovered
	delete(m.allocations, allocationID)
	delete(m.deployments, allocationID)
	m.pool.allocated -= alloc.Amount
	m.pool.deployed -= alloc.Deployed
	m.pool.clampNegatives(m.cfg.Domain, m.logger)

	m.recordEvent(models.MarginEvent{
		Kind: kind, AllocationID: allocationID, Amount: remaining, Reason: reason, Timestamp: time.Now(),
	})
	m.metrics.RecordRecovery(m.cfg.Domain)
	m.publishPoolGauges()

	m.logger.Info("margin recovered",
		logger.String("domain", m.cfg.Domain),
		logger.String("allocation_id", allocationID),
		logger.Any("released", remaining))
	return true, nil
}

// ProcessSignals auto-allocates margin for emergency signals. Per-signal
// failures are logged and do not abort the rest of the batch.
func (m *Manager) ProcessSignals(signals []models.Signal) error {
	if !m.cfg.Enabled {
		return nil
	}
	for i := range signals {
		sig := &signals[i]
		if !sig.IsEmergency() {
			continue
		}
		amount := m.cfg.SeverityUnit * severityMultiplier[sig.Severity]
		if _, err := m.allocate(sig.ID, amount, sig.Severity, "signal "+string(sig.Type), true); err != nil {
			m.metrics.RecordError("auto_allocate_" + m.cfg.Domain)
			m.logger.Warn("auto-allocation failed",
				logger.String("domain", m.cfg.Domain),
				logger.String("signal_id", sig.ID),
				logger.Error(err))
		}
	}
	return nil
}

// OnSignals implements repository.Subscriber.
func (m *Manager) OnSignals(_ context.Context, signals []models.Signal) error {
	return m.ProcessSignals(signals)
}

// Status returns a read-only snapshot of the pool.
func (m *Manager) Status() models.DomainStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	activeDeployments := 0
	for _, deps := range m.deployments {
		activeDeployments += len(deps)
	}
	events := make([]models.MarginEvent, len(m.events))
	copy(events, m.events)

	return models.DomainStatus{
		Domain:            m.cfg.Domain,
		Type:              m.cfg.Type,
		Enabled:           m.cfg.Enabled,
		Capacity:          m.pool.capacity,
		TotalAllocated:    m.pool.allocated,
		TotalDeployed:     m.pool.deployed,
		AvailableMargin:   m.pool.available(),
		UtilizationRate:   m.pool.utilization(),
		ActiveAllocations: len(m.allocations),
		ActiveDeployments: activeDeployments,
		RecentEvents:      events,
		CollectedAt:       time.Now(),
	}
}

// Start launches the TTL sweep ticker when expiry is configured.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.AllocationTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweepExpired()
			}
		}
	}()
}

// Stop terminates the TTL sweep.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) sweepExpired() {
	cutoff := time.Now().Add(-m.cfg.AllocationTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, alloc := range m.allocations {
		if alloc.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		if _, err := m.recoverLocked(id, "allocation ttl expired", "ttl_recover"); err != nil {
			m.logger.Warn("ttl sweep recover failed",
				logger.String("domain", m.cfg.Domain),
				logger.String("allocation_id", id),
				logger.Error(err))
		}
	}
}

func (m *Manager) recordEvent(ev models.MarginEvent) {
	m.events = append(m.events, ev)
	if len(m.events) > m.cfg.RecentEventsSize {
		m.events = m.events[len(m.events)-m.cfg.RecentEventsSize:]
	}
}

func (m *Manager) publishPoolGauges() {
	m.metrics.SetPool(m.cfg.Domain, m.pool.allocated, m.pool.deployed, m.pool.available())
}

func cloneAllocation(a *models.Allocation) *models.Allocation {
	c := *a
	return &c
}

var _ domrepo.Subscriber = (*Manager)(nil)
