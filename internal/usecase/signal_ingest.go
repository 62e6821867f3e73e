package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/router"
	pkgkafka "MarginFlow/pkg/kafka"
	"MarginFlow/pkg/logger"
)

// Routing is the downstream port for decoded signal batches.
type Routing interface {
	Route(ctx context.Context, signals []models.Signal) router.RoutingResult
}

// signalEnvelope is the wire format on the signals topic. Producers either
// send {"signals":[...]} or a bare JSON array.
type signalEnvelope struct {
	Signals []models.Signal `json:"signals"`
}

// KafkaSignalHandler consumes signal batches from Kafka and feeds the router.
type KafkaSignalHandler struct {
	topic   string
	routing Routing
	logger  *logger.Logger
	metrics domrepo.Metrics
}

// NewKafkaSignalHandler creates the handler for the given topic.
func NewKafkaSignalHandler(topic string, routing Routing, l *logger.Logger, metrics domrepo.Metrics) *KafkaSignalHandler {
	return &KafkaSignalHandler{
		topic:   topic,
		routing: routing,
		logger:  l,
		metrics: metrics,
	}
}

// Topic implements kafka.MessageHandler.
func (h *KafkaSignalHandler) Topic() string { return h.topic }

// Handle implements kafka.MessageHandler. Decode failures are returned so
// the consumer retries and eventually parks the message on the DLQ. Signals
// rejected by validation are counted by the router, not retried.
func (h *KafkaSignalHandler) Handle(ctx context.Context, data []byte) error {
	start := time.Now()

	signals, err := decodeSignals(data)
	if err != nil {
		h.metrics.RecordError("signal_decode")
		return fmt.Errorf("decode signal batch: %w", err)
	}
	if len(signals) == 0 {
		return nil
	}

	result := h.routing.Route(ctx, signals)
	h.metrics.RecordLatency("kafka_signal_batch", time.Since(start).Seconds())

	if len(result.SubscriberErrors) > 0 {
		h.logger.Warn("signal batch had subscriber errors",
			logger.Int("signals", len(signals)),
			logger.Int("failed_subscribers", len(result.SubscriberErrors)))
	}
	h.logger.Debug("kafka signal batch routed",
		logger.Int("processed", result.Processed),
		logger.Int("filtered", result.Filtered))
	return nil
}

func decodeSignals(data []byte) ([]models.Signal, error) {
	var env signalEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Signals != nil {
		return env.Signals, nil
	}
	var bare []models.Signal
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalHandler)(nil)
