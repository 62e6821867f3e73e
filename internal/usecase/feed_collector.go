package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/middleware"
	"MarginFlow/pkg/logger"
)

// FeedCollector bridges a streaming signal feed into the ingestion pipeline.
// It owns the stream lifecycle: connect, subscribe, consume, reconnect.
type FeedCollector struct {
	stream  domrepo.SignalStream
	pipe    *middleware.SignalPipeline
	logger  *logger.Logger
	metrics domrepo.Metrics

	reconnectDelay time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewFeedCollector creates a collector over the given stream and pipeline.
func NewFeedCollector(stream domrepo.SignalStream, pipe *middleware.SignalPipeline, l *logger.Logger, metrics domrepo.Metrics) *FeedCollector {
	return &FeedCollector{
		stream:         stream,
		pipe:           pipe,
		logger:         l,
		metrics:        metrics,
		reconnectDelay: 5 * time.Second,
	}
}

// Start connects the stream and launches the consume loop.
func (c *FeedCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}

	c.pipe.Start(ctx)
	go c.consume(ctx)

	c.logger.Info("feed collector started")
	return nil
}

// consume reads signal frames; the stream closes its channels on failure, so
// each reconnect starts a fresh Read.
func (c *FeedCollector) consume(ctx context.Context) {
	sigCh, errCh := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				if !c.reconnect(ctx) {
					return
				}
				sigCh, errCh = c.stream.Read(ctx)
				continue
			}
			if err := c.pipe.Offer(sig); err != nil {
				c.metrics.RecordError("feed_offer")
			}
		case err, ok := <-errCh:
			if !ok {
				// closed error channel: wait for sigCh to close and reconnect there
				errCh = nil
				continue
			}
			c.metrics.RecordError("feed_stream")
			c.logger.Error("feed stream error, reconnecting", logger.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			sigCh, errCh = c.stream.Read(ctx)
		}
	}
}

// reconnect retries until the stream is back or the context ends. Returns
// false when the context ended first. Reconnect re-subscribes internally.
func (c *FeedCollector) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.reconnectDelay):
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.logger.Warn("feed reconnect failed", logger.Error(err))
			continue
		}
		c.logger.Info("feed stream reconnected")
		return true
	}
}

// Shutdown stops consumption and closes the stream.
func (c *FeedCollector) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if c.cancel != nil {
		c.cancel()
	}
	c.pipe.Stop()
	return c.stream.Close()
}
