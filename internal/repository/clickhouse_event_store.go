package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	pkgch "MarginFlow/pkg/clickhouse"
)

const (
	stressEventsTable = "stress_events"
	metricsTable      = "resilience_metrics"
)

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS ` + stressEventsTable + ` (
        ts DateTime64(3),
        event_id String,
        stress_level Float64,
        trigger_signals Array(String),
        adaptations Array(String),
        response_time_ms Float64,
        throughput Float64,
        error_rate Float64,
        resource_utilization Float64,
        outcome_success UInt8,
        improvement_rate Float64,
        payload String
    ) ENGINE = MergeTree()
    ORDER BY (ts, event_id)`,
	`CREATE TABLE IF NOT EXISTS ` + metricsTable + ` (
        ts DateTime64(3),
        overall_score Float64,
        health String,
        signal_processing Float64,
        antifragile Float64,
        adaptive Float64,
        margin_efficiency Float64,
        response_time Float64,
        error_handling Float64,
        signals_processed Int64,
        signals_filtered Int64,
        payload String
    ) ENGINE = MergeTree()
    ORDER BY ts`,
}

// CHEventStore implements EventStore backed by ClickHouse. Full documents go
// into the payload column as JSON; hot columns are lifted out for dashboards.
type CHEventStore struct {
	client *pkgch.Client
	db     *sql.DB
}

// NewCHEventStore creates the ClickHouse event store.
func NewCHEventStore(client *pkgch.Client) *CHEventStore {
	return &CHEventStore{client: client, db: client.DB()}
}

// Init ensures the tables exist; idempotent.
func (s *CHEventStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, schemaStmts)
}

// StoreStressEvent persists one immutable stress event.
func (s *CHEventStore) StoreStressEvent(ctx context.Context, ev *models.StressEvent) error {
	if ev == nil {
		return fmt.Errorf("nil stress event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stress event: %w", err)
	}

	kinds := make([]string, 0, len(ev.AdaptationsApplied))
	for _, k := range ev.AdaptationsApplied {
		kinds = append(kinds, string(k))
	}
	success := uint8(0)
	if ev.Outcome.Success {
		success = 1
	}

	q := `INSERT INTO ` + stressEventsTable + ` (ts, event_id, stress_level, trigger_signals, adaptations,
        response_time_ms, throughput, error_rate, resource_utilization,
        outcome_success, improvement_rate, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		ev.Timestamp,
		ev.ID,
		ev.StressLevel,
		ev.TriggerSignals,
		kinds,
		ev.Performance.ResponseTimeMS,
		ev.Performance.Throughput,
		ev.Performance.ErrorRate,
		ev.Performance.ResourceUtilization,
		success,
		ev.Outcome.ImprovementRate,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("store stress event: %w", err)
	}
	return nil
}

// StoreMetrics persists one resilience metrics snapshot.
func (s *CHEventStore) StoreMetrics(ctx context.Context, m *models.ResilienceMetrics) error {
	if m == nil {
		return fmt.Errorf("nil metrics snapshot")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	q := `INSERT INTO ` + metricsTable + ` (ts, overall_score, health, signal_processing, antifragile,
        adaptive, margin_efficiency, response_time, error_handling,
        signals_processed, signals_filtered, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		m.Timestamp,
		m.OverallScore,
		m.Health,
		m.Components.SignalProcessing,
		m.Components.Antifragile,
		m.Components.Adaptive,
		m.Components.MarginEfficiency,
		m.Components.ResponseTime,
		m.Components.ErrorHandling,
		m.SignalsProcessed,
		m.SignalsFiltered,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}
	return nil
}

// QueryStressEvents returns recent stress events, newest first.
func (s *CHEventStore) QueryStressEvents(ctx context.Context, from, to time.Time, limit int) ([]*models.StressEvent, error) {
	q := `SELECT payload FROM ` + stressEventsTable + ` WHERE ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query stress events: %w", err)
	}
	defer rows.Close()

	var out []*models.StressEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan stress event: %w", err)
		}
		var ev models.StressEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode stress event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Health pings the connection pool.
func (s *CHEventStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.
func (s *CHEventStore) Close() error {
	return nil
}

var _ domrepo.EventStore = (*CHEventStore)(nil)

// NopEventStore is used when ClickHouse is disabled.
type NopEventStore struct{}

func (NopEventStore) Init(context.Context) error { return nil }

func (NopEventStore) StoreStressEvent(context.Context, *models.StressEvent) error { return nil }

func (NopEventStore) StoreMetrics(context.Context, *models.ResilienceMetrics) error { return nil }

func (NopEventStore) Health(context.Context) error { return nil }

func (NopEventStore) Close() error { return nil }

var _ domrepo.EventStore = NopEventStore{}
