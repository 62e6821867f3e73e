package usecase

import (
	"context"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/logger"
	"MarginFlow/pkg/queue"
)

// Queue message types for asynchronous persistence.
const (
	TypeStressEvent     = "stress_event.store"
	TypeMetricsSnapshot = "metrics.store"
)

// StressEventJob persists stress events from the queue into the event store.
type StressEventJob struct {
	store domrepo.EventStore
}

func NewStressEventJob(store domrepo.EventStore) *StressEventJob {
	return &StressEventJob{store: store}
}

func (j *StressEventJob) Name() string { return "stress-event-store" }
func (j *StressEventJob) Type() string { return TypeStressEvent }

func (j *StressEventJob) Handle(ctx context.Context, payload interface{}) error {
	ev, err := queue.ParsePayload[models.StressEvent](payload)
	if err != nil {
		return err
	}
	return j.store.StoreStressEvent(ctx, ev)
}

// MetricsSnapshotJob persists resilience metrics snapshots from the queue.
type MetricsSnapshotJob struct {
	store domrepo.EventStore
	cache domrepo.SnapshotCache
}

func NewMetricsSnapshotJob(store domrepo.EventStore, cache domrepo.SnapshotCache) *MetricsSnapshotJob {
	return &MetricsSnapshotJob{store: store, cache: cache}
}

func (j *MetricsSnapshotJob) Name() string { return "metrics-snapshot-store" }
func (j *MetricsSnapshotJob) Type() string { return TypeMetricsSnapshot }

func (j *MetricsSnapshotJob) Handle(ctx context.Context, payload interface{}) error {
	m, err := queue.ParsePayload[models.ResilienceMetrics](payload)
	if err != nil {
		return err
	}
	if j.cache != nil {
		// cache write failures do not block durable storage
		_ = j.cache.PutMetrics(ctx, m)
	}
	return j.store.StoreMetrics(ctx, m)
}

var (
	_ queue.Job = (*StressEventJob)(nil)
	_ queue.Job = (*MetricsSnapshotJob)(nil)
)

// PersistencePublisher enqueues persistence work from the engine's hot paths.
// Publishing is best-effort with a short timeout; failures are logged and
// counted, never propagated back into signal processing.
type PersistencePublisher struct {
	q       queue.QueueService
	logger  *logger.Logger
	metrics domrepo.Metrics
	timeout time.Duration
}

// NewPersistencePublisher creates the publisher over the job queue.
func NewPersistencePublisher(q queue.QueueService, l *logger.Logger, metrics domrepo.Metrics) *PersistencePublisher {
	return &PersistencePublisher{
		q:       q,
		logger:  l,
		metrics: metrics,
		timeout: 2 * time.Second,
	}
}

// SinkStressEvent is wired as the antifragile engine's event sink.
func (p *PersistencePublisher) SinkStressEvent(ev *models.StressEvent) {
	p.publish(TypeStressEvent, ev)
}

// SinkMetrics is wired as the monitor's snapshot sink.
func (p *PersistencePublisher) SinkMetrics(m *models.ResilienceMetrics) {
	p.publish(TypeMetricsSnapshot, m)
}

func (p *PersistencePublisher) publish(msgType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.q.PublishMessage(ctx, msgType, payload); err != nil {
		p.metrics.RecordError("persistence_enqueue")
		p.logger.Error("persistence enqueue failed",
			logger.String("type", msgType), logger.Error(err))
	}
}
