package repository

import (
	"context"

	"MarginFlow/internal/domain/models"
)

// SignalStream is a live feed of condition signals from an external monitor.
type SignalStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Signal, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Subscriber receives validated signal batches from the router.
// Domain managers and the antifragile engine implement it.
type Subscriber interface {
	Name() string
	OnSignals(ctx context.Context, signals []models.Signal) error
}

// EventStore persists stress events and metrics snapshots after the fact.
// Never called on the allocate/deploy/recover hot path.
type EventStore interface {
	Init(ctx context.Context) error
	StoreStressEvent(ctx context.Context, ev *models.StressEvent) error
	StoreMetrics(ctx context.Context, m *models.ResilienceMetrics) error
	Health(ctx context.Context) error
	Close() error
}

// SnapshotCache keeps the latest metrics snapshot for dashboard reads that
// must survive a restart.
type SnapshotCache interface {
	PutMetrics(ctx context.Context, m *models.ResilienceMetrics) error
	GetMetrics(ctx context.Context) (*models.ResilienceMetrics, error)
}

// AlertNotifier delivers alerts to an external channel (kafka topic, webhook).
type AlertNotifier interface {
	Notify(ctx context.Context, alert *models.MonitoringAlert) error
	Close() error
}

// Metrics records engine observability counters and gauges.
type Metrics interface {
	RecordSignal(signalType, severity string)
	RecordFiltered(reason string)
	RecordAllocation(domain string, amount float64)
	RecordDeployment(domain string, amount float64)
	RecordRecovery(domain string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetPool(domain string, allocated, deployed, available float64)
	SetStressLevel(level float64)
	SetOverallScore(score float64)
	RecordAlert(severity string)
}
