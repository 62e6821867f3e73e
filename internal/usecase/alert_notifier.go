package usecase

import (
	"context"
	"fmt"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	xhttp "MarginFlow/pkg/http"
	pkgkafka "MarginFlow/pkg/kafka"
	"MarginFlow/pkg/logger"
)

// KafkaAlertNotifier publishes raised alerts onto a Kafka topic, keyed by
// metric so per-metric ordering holds.
type KafkaAlertNotifier struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertNotifier(producer *pkgkafka.Producer, topic string) *KafkaAlertNotifier {
	return &KafkaAlertNotifier{producer: producer, topic: topic}
}

func (n *KafkaAlertNotifier) Notify(ctx context.Context, alert *models.MonitoringAlert) error {
	return n.producer.Publish(ctx, n.topic, []byte(alert.Metric), alert)
}

func (n *KafkaAlertNotifier) Close() error { return n.producer.Close() }

// WebhookAlertNotifier POSTs raised alerts to an HTTP endpoint.
type WebhookAlertNotifier struct {
	client *xhttp.Client
	url    string
}

func NewWebhookAlertNotifier(client *xhttp.Client, url string) *WebhookAlertNotifier {
	return &WebhookAlertNotifier{client: client, url: url}
}

func (n *WebhookAlertNotifier) Notify(ctx context.Context, alert *models.MonitoringAlert) error {
	return n.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    n.url,
		Body:   alert,
	}, nil)
}

func (n *WebhookAlertNotifier) Close() error { return nil }

// MultiNotifier fans an alert out to every channel. One channel failing does
// not stop delivery to the rest; the first error is returned.
type MultiNotifier struct {
	notifiers []domrepo.AlertNotifier
	logger    *logger.Logger
}

func NewMultiNotifier(l *logger.Logger, notifiers ...domrepo.AlertNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: l}
}

func (n *MultiNotifier) Notify(ctx context.Context, alert *models.MonitoringAlert) error {
	var first error
	for _, sub := range n.notifiers {
		if err := sub.Notify(ctx, alert); err != nil {
			n.logger.Error("alert channel delivery failed", logger.Error(err))
			if first == nil {
				first = fmt.Errorf("alert delivery: %w", err)
			}
		}
	}
	return first
}

func (n *MultiNotifier) Close() error {
	var first error
	for _, sub := range n.notifiers {
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ domrepo.AlertNotifier = (*KafkaAlertNotifier)(nil)
	_ domrepo.AlertNotifier = (*WebhookAlertNotifier)(nil)
	_ domrepo.AlertNotifier = (*MultiNotifier)(nil)
)
