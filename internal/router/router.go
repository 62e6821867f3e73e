package router

import (
	"context"
	"fmt"
	"sync"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/logger"
)

// RoutingResult reports the outcome of one Route call.
type RoutingResult struct {
	Processed        int               `json:"processed"`
	Filtered         int               `json:"filtered"`
	SubscriberErrors map[string]string `json:"subscriberErrors,omitempty"`
}

// Stats is a cumulative snapshot of router counters for the metrics monitor.
type Stats struct {
	Processed            int64
	Filtered             int64
	SeverityDistribution map[models.Severity]int64
}

// Router validates signals and fans them out to all registered subscribers.
// One subscriber's failure never prevents delivery to the others.
type Router struct {
	logger  *logger.Logger
	metrics domrepo.Metrics

	mu          sync.RWMutex
	subscribers []domrepo.Subscriber

	statsMu   sync.Mutex
	processed int64
	filtered  int64
	bySev     map[models.Severity]int64
}

// New creates a signal router.
func New(l *logger.Logger, metrics domrepo.Metrics) *Router {
	return &Router{
		logger:  l,
		metrics: metrics,
		bySev:   make(map[models.Severity]int64),
	}
}

// Register adds a subscriber. Not safe to call concurrently with Route only
// if ordering matters; registration normally happens during wiring.
func (r *Router) Register(s domrepo.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, s)
	r.logger.Info("router subscriber registered", logger.String("subscriber", s.Name()))
}

// Route validates the batch and delivers valid signals concurrently to every
// subscriber. Invalid signals are counted as filtered and dropped.
func (r *Router) Route(ctx context.Context, signals []models.Signal) RoutingResult {
	valid := make([]models.Signal, 0, len(signals))
	filtered := 0
	for i := range signals {
		if err := signals[i].Validate(); err != nil {
			filtered++
			r.metrics.RecordFiltered("invalid_signal")
			r.logger.Warn("signal filtered", logger.Error(err))
			continue
		}
		if signals[i].Status == "" {
			signals[i].Status = models.SignalActive
		}
		r.metrics.RecordSignal(string(signals[i].Type), string(signals[i].Severity))
		valid = append(valid, signals[i])
	}

	result := RoutingResult{Filtered: filtered}
	r.recordStats(valid, filtered)
	if len(valid) == 0 {
		return result
	}
	result.Processed = len(valid)

	r.mu.RLock()
	subs := make([]domrepo.Subscriber, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(s domrepo.Subscriber) {
			defer wg.Done()
			// each subscriber gets its own copy so managers can annotate freely
			batch := make([]models.Signal, len(valid))
			copy(batch, valid)

			err := r.deliver(ctx, s, batch)
			if err != nil {
				r.metrics.RecordError("subscriber_" + s.Name())
				r.logger.Error("subscriber delivery failed",
					logger.String("subscriber", s.Name()), logger.Error(err))
				errMu.Lock()
				if result.SubscriberErrors == nil {
					result.SubscriberErrors = make(map[string]string)
				}
				result.SubscriberErrors[s.Name()] = err.Error()
				errMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()
	return result
}

// deliver invokes a subscriber, converting panics into errors.
func (r *Router) deliver(ctx context.Context, s domrepo.Subscriber, batch []models.Signal) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber panic: %v", rec)
		}
	}()
	return s.OnSignals(ctx, batch)
}

// Stats returns cumulative routing counters.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	dist := make(map[models.Severity]int64, len(r.bySev))
	for k, v := range r.bySev {
		dist[k] = v
	}
	return Stats{Processed: r.processed, Filtered: r.filtered, SeverityDistribution: dist}
}

func (r *Router) recordStats(valid []models.Signal, filtered int) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.processed += int64(len(valid))
	r.filtered += int64(filtered)
	for i := range valid {
		r.bySev[valid[i].Severity]++
	}
}
