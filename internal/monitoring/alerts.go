package monitoring

import (
	"fmt"
	"sync"
	"time"

	"MarginFlow/internal/domain/models"

	"github.com/google/uuid"
)

// alertBook owns alert lifecycle state. Emission is idempotent per metric:
// while the previous alert for a metric is ACTIVE or ACKNOWLEDGED, a matching
// threshold does not create a duplicate.
type alertBook struct {
	mu             sync.Mutex
	alerts         []*models.MonitoringAlert
	activeByMetric map[string]*models.MonitoringAlert
}

func newAlertBook() *alertBook {
	return &alertBook{activeByMetric: make(map[string]*models.MonitoringAlert)}
}

// raise creates a new ACTIVE alert for the metric unless one is still open.
// Returns the alert and whether it is newly created.
func (b *alertBook) raise(t models.AlertThreshold, value float64, now time.Time) (*models.MonitoringAlert, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.activeByMetric[t.Metric]; ok && existing.Status != models.AlertResolved {
		return existing, false
	}

	alert := &models.MonitoringAlert{
		ID:        uuid.NewString(),
		Timestamp: now,
		Severity:  t.Severity,
		Type:      "threshold",
		Metric:    t.Metric,
		Message:   fmt.Sprintf("%s %s %v (observed %v)", t.Metric, t.Operator, t.Value, value),
		Context: map[string]interface{}{
			"operator":  string(t.Operator),
			"threshold": t.Value,
			"observed":  value,
		},
		Status: models.AlertActive,
	}
	b.alerts = append(b.alerts, alert)
	b.activeByMetric[t.Metric] = alert
	return alert, true
}

// acknowledge transitions ACTIVE→ACKNOWLEDGED. Repeats and calls on alerts
// already past that state are no-ops, not errors.
func (b *alertBook) acknowledge(id string) (*models.MonitoringAlert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alert := b.find(id)
	if alert == nil {
		return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, id)
	}
	if alert.Status == models.AlertActive {
		now := time.Now()
		alert.Status = models.AlertAcknowledged
		alert.AcknowledgedAt = &now
	}
	return alert, nil
}

// resolve transitions to RESOLVED from either ACTIVE or ACKNOWLEDGED.
// Resolving twice is a no-op.
func (b *alertBook) resolve(id, resolution string) (*models.MonitoringAlert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alert := b.find(id)
	if alert == nil {
		return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, id)
	}
	if alert.Status != models.AlertResolved {
		now := time.Now()
		alert.Status = models.AlertResolved
		alert.ResolvedAt = &now
		alert.Resolution = resolution
		if b.activeByMetric[alert.Metric] == alert {
			delete(b.activeByMetric, alert.Metric)
		}
	}
	return alert, nil
}

func (b *alertBook) find(id string) *models.MonitoringAlert {
	for _, a := range b.alerts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// active returns open (non-resolved) alerts, newest first.
func (b *alertBook) active() []*models.MonitoringAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.MonitoringAlert
	for i := len(b.alerts) - 1; i >= 0; i-- {
		if b.alerts[i].Status != models.AlertResolved {
			out = append(out, cloneAlert(b.alerts[i]))
		}
	}
	return out
}

// all returns up to limit alerts, newest first.
func (b *alertBook) all(limit int) []*models.MonitoringAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.MonitoringAlert
	for i := len(b.alerts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, cloneAlert(b.alerts[i]))
	}
	return out
}

// evict drops resolved alerts older than the retention period.
func (b *alertBook) evict(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.alerts[:0]
	for _, a := range b.alerts {
		if a.Status == models.AlertResolved && a.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, a)
	}
	b.alerts = kept
}

func cloneAlert(a *models.MonitoringAlert) *models.MonitoringAlert {
	c := *a
	return &c
}
