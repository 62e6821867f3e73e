package di

import (
	"context"
	"fmt"
	"time"

	"MarginFlow/internal/antifragile"
	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/handler/api"
	"MarginFlow/internal/margin"
	mid "MarginFlow/internal/middleware"
	"MarginFlow/internal/monitoring"
	internalrepo "MarginFlow/internal/repository"
	"MarginFlow/internal/router"
	icache "MarginFlow/internal/service/cache"
	"MarginFlow/internal/service/feed"
	"MarginFlow/internal/usecase"
	"MarginFlow/pkg/cache"
	pkgch "MarginFlow/pkg/clickhouse"
	"MarginFlow/pkg/config"
	xhttp "MarginFlow/pkg/http"
	pkgkafka "MarginFlow/pkg/kafka"
	"MarginFlow/pkg/logger"
	pkgmetrics "MarginFlow/pkg/metrics"
	"MarginFlow/pkg/queue"
	"MarginFlow/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return pkgmetrics.New()
}

// ProvideRouter creates the signal router.
func ProvideRouter(l *logger.Logger, metrics domrepo.Metrics) *router.Router {
	return router.New(l, metrics)
}

// ProvideManagers builds the five margin domain managers.
func ProvideManagers(cfg *config.Config, l *logger.Logger, metrics domrepo.Metrics) []*margin.Manager {
	return margin.NewAll(cfg, l, metrics)
}

// ProvideEngine builds the antifragile adaptation engine from configured patterns.
func ProvideEngine(cfg *config.Config, l *logger.Logger, metrics domrepo.Metrics) (*antifragile.Engine, error) {
	ec, err := antifragile.ConfigFromSpecs(cfg)
	if err != nil {
		return nil, fmt.Errorf("antifragile config: %w", err)
	}
	return antifragile.New(ec, l, metrics), nil
}

// ProvideMonitor builds the resilience metrics monitor over all components.
func ProvideMonitor(
	cfg *config.Config,
	l *logger.Logger,
	metrics domrepo.Metrics,
	managers []*margin.Manager,
	engine *antifragile.Engine,
	rt *router.Router,
) *monitoring.Monitor {
	thresholds := make([]models.AlertThreshold, 0, len(cfg.Monitoring.Thresholds))
	for _, t := range cfg.Monitoring.Thresholds {
		thresholds = append(thresholds, models.AlertThreshold{
			Metric:   t.Metric,
			Operator: models.Operator(t.Operator),
			Value:    t.Value,
			Severity: models.Severity(t.Severity),
		})
	}

	domains := make([]monitoring.DomainSource, 0, len(managers))
	for _, m := range managers {
		domains = append(domains, m)
	}

	mc := monitoring.Config{
		CollectionInterval: cfg.Monitoring.CollectionInterval,
		RetentionPeriod:    cfg.Monitoring.RetentionPeriod,
		MinAlertSeverity:   models.Severity(cfg.Monitoring.MinAlertSeverity),
		Thresholds:         thresholds,
		MarginEnabled:      cfg.Monitoring.Components.Margin,
		AntifragileEnabled: cfg.Monitoring.Components.Antifragile,
		RouterEnabled:      cfg.Monitoring.Components.Router,
	}
	return monitoring.New(mc, l, metrics, domains, engine, rt)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideEventStore creates the stress-event store. Falls back to a no-op
// store when ClickHouse is disabled.
func ProvideEventStore(chClient *pkgch.Client) (domrepo.EventStore, error) {
	if chClient == nil {
		return internalrepo.NopEventStore{}, nil
	}
	store := internalrepo.NewCHEventStore(chClient)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("event store schema: %w", err)
	}
	return store, nil
}

// ProvideRedisCache creates the Redis cache client, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheService layers an in-process cache over Redis when available,
// or serves from memory alone.
func ProvideCacheService(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(1000))
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(1000))
}

// ProvideSnapshotCache creates the snapshot cache over the cache service.
func ProvideSnapshotCache(c cache.Service) domrepo.SnapshotCache {
	return internalrepo.NewCacheSnapshotStore(c, 5*time.Minute)
}

// PersistenceQueues bundles the async persistence queue pair.
type PersistenceQueues struct {
	Publisher *usecase.PersistencePublisher
	Consumer  *queue.RedisQueue
	// Queue is the raw publish side, reused by the log collector.
	Queue queue.QueueService
}

// ProvidePersistenceQueues wires the Redis job queue for stress events and
// metrics snapshots. Requires Redis; without it persistence stays disabled.
func ProvidePersistenceQueues(
	cfg *config.Config,
	l *logger.Logger,
	metrics domrepo.Metrics,
	rc *cache.RedisCache,
	store domrepo.EventStore,
	snapshots domrepo.SnapshotCache,
) *PersistenceQueues {
	if rc == nil {
		return &PersistenceQueues{}
	}

	jobs := []queue.Job{
		usecase.NewStressEventJob(store),
		usecase.NewMetricsSnapshotJob(store, snapshots),
	}
	consumer := queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    cfg.Persistence.Workers,
		QueueSize:  cfg.Persistence.QueueSize,
		RetryLimit: cfg.Persistence.RetryLimit,
		RetryDelay: cfg.Persistence.RetryDelay,
	}, rc.Client(), jobs)
	publisher := queue.NewRedisPublisher(l, rc.Client())

	return &PersistenceQueues{
		Publisher: usecase.NewPersistencePublisher(publisher, l, metrics),
		Consumer:  consumer,
		Queue:     publisher,
	}
}

// ProvideKafkaProducer creates the Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertNotifier builds the external alert channel fan-out. Returns nil
// when no channel is configured; the monitor treats that as local-only alerts.
func ProvideAlertNotifier(cfg *config.Config, l *logger.Logger, producer *pkgkafka.Producer) domrepo.AlertNotifier {
	var channels []domrepo.AlertNotifier
	if producer != nil && cfg.Monitoring.AlertChannel.KafkaTopic != "" {
		channels = append(channels, usecase.NewKafkaAlertNotifier(producer, cfg.Monitoring.AlertChannel.KafkaTopic))
	}
	if cfg.Monitoring.AlertChannel.WebhookURL != "" {
		channels = append(channels, usecase.NewWebhookAlertNotifier(xhttp.NewClient(), cfg.Monitoring.AlertChannel.WebhookURL))
	}
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	return usecase.NewMultiNotifier(l, channels...)
}

// ProvideKafkaConsumer creates the Kafka consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideSignalHandler registers the handler for the signals topic.
func ProvideSignalHandler(cfg *config.Config, rt *router.Router, l *logger.Logger, metrics domrepo.Metrics) *usecase.KafkaSignalHandler {
	return usecase.NewKafkaSignalHandler(cfg.Kafka.SignalsTopic, rt, l, metrics)
}

// ProvideSignalStream creates the WebSocket feed, or nil when disabled.
func ProvideSignalStream(cfg *config.Config) domrepo.SignalStream {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideFeedCollector bridges the WebSocket feed into the router through the
// ingestion pipeline. Nil when the feed is disabled.
func ProvideFeedCollector(
	cfg *config.Config,
	stream domrepo.SignalStream,
	rt *router.Router,
	l *logger.Logger,
	metrics domrepo.Metrics,
) *usecase.FeedCollector {
	if stream == nil {
		return nil
	}
	pipe := mid.NewSignalPipeline(rt, metrics,
		mid.WithMaxSourceRPS(cfg.Router.MaxSourceRPS),
		mid.WithBufferSize(cfg.Router.BufferSize),
		mid.WithBatchSize(cfg.Router.MaxBatchSize),
	)
	return usecase.NewFeedCollector(stream, pipe, l, metrics)
}

// ProvideHTTPHandler creates the REST API handler. Durable stress-event
// queries and the shared response cache follow the configured backends.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *logger.Logger,
	rt *router.Router,
	monitor *monitoring.Monitor,
	engine *antifragile.Engine,
	managers []*margin.Manager,
	store domrepo.EventStore,
	snapshots domrepo.SnapshotCache,
) xhttp.Handler {
	h := api.NewEngineHandler(l, rt, monitor, engine, managers)
	if src, ok := store.(api.StressEventSource); ok {
		h.SetStressEventSource(src)
	}
	h.SetSnapshotCache(snapshots)
	if cfg.Redis.Enabled {
		h.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}
	return h
}

// ProvideApp assembles the application and wires the cross-component hooks:
// router subscriptions, persistence sinks, and the alert channel.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	rt *router.Router,
	managers []*margin.Manager,
	engine *antifragile.Engine,
	monitor *monitoring.Monitor,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalHandler,
	queues *PersistenceQueues,
	notifier domrepo.AlertNotifier,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
	httpHandler xhttp.Handler,
) *server.App {
	for _, m := range managers {
		rt.Register(m)
	}
	rt.Register(engine)

	if queues.Publisher != nil {
		engine.SetEventSink(queues.Publisher.SinkStressEvent)
		monitor.SetMetricsSink(queues.Publisher.SinkMetrics)
	}
	if queues.Queue != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "logs.aggregate",
			Publisher:      queues.Queue,
		})
	}
	if notifier != nil {
		monitor.SetNotifier(notifier)
	}

	app := server.New(cfg, l, managers, monitor, httpHandler)
	app.Collector = collector
	app.Consumer = consumer
	app.SignalHandler = kh
	app.PersistenceConsumer = queues.Consumer
	app.Notifier = notifier
	app.ClickHouse = chClient
	app.Redis = rc
	return app
}
