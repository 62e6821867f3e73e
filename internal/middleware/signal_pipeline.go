package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/router"
)

// Routing is the downstream port the pipeline feeds.
type Routing interface {
	Route(ctx context.Context, signals []models.Signal) router.RoutingResult
}

// SignalPipeline sits between streaming ingestion and the router. It
// throttles per source, buffers bursts, and coalesces single signals into
// small batches so the stress engine sees clusters rather than singletons.
type SignalPipeline struct {
	routing Routing
	metrics domrepo.Metrics

	maxSourceRPS  int
	batchSize     int
	flushInterval time.Duration

	bufCh    chan models.Signal
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-source last accepted time
}

type PipelineOption func(*SignalPipeline)

// WithMaxSourceRPS sets the max signals per second accepted per source.
func WithMaxSourceRPS(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.maxSourceRPS = n
		}
	}
}

// WithBufferSize sets the burst buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.bufCh = make(chan models.Signal, n)
		}
	}
}

// WithBatchSize sets how many signals are coalesced per Route call.
func WithBatchSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets the max delay before a partial batch is routed.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *SignalPipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// NewSignalPipeline creates a new ingestion pipeline.
func NewSignalPipeline(routing Routing, metrics domrepo.Metrics, opts ...PipelineOption) *SignalPipeline {
	p := &SignalPipeline{
		routing:       routing,
		metrics:       metrics,
		maxSourceRPS:  50,
		batchSize:     16,
		flushInterval: 500 * time.Millisecond,
		bufCh:         make(chan models.Signal, 1000),
		stopCh:        make(chan struct{}),
		lastSeen:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offer accepts one signal for asynchronous routing. Throttled and dropped
// signals are counted, not errors.
func (p *SignalPipeline) Offer(sig *models.Signal) error {
	if sig == nil {
		return fmt.Errorf("nil signal")
	}
	if !p.allow(sig.Source, time.Now()) {
		p.metrics.RecordFiltered("pipeline_throttle")
		return nil
	}
	select {
	case p.bufCh <- *sig:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return nil
	}
}

// Start launches the batching flush loop.
func (p *SignalPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()
		batch := make([]models.Signal, 0, p.batchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			start := time.Now()
			p.routing.Route(ctx, batch)
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				flush()
				return
			case <-p.stopCh:
				flush()
				return
			case sig := <-p.bufCh:
				batch = append(batch, sig)
				if len(batch) >= p.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

// Stop stops the flush loop.
func (p *SignalPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

func (p *SignalPipeline) allow(source string, now time.Time) bool {
	if p.maxSourceRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[source]
	if last.IsZero() || now.Sub(last) >= time.Second/time.Duration(p.maxSourceRPS) {
		p.lastSeen[source] = now
		return true
	}
	return false
}
