package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/margin"
	"MarginFlow/internal/monitoring"
	"MarginFlow/internal/usecase"
	"MarginFlow/pkg/cache"
	pkgch "MarginFlow/pkg/clickhouse"
	"MarginFlow/pkg/config"
	xhttp "MarginFlow/pkg/http"
	pkgkafka "MarginFlow/pkg/kafka"
	applogger "MarginFlow/pkg/logger"
	"MarginFlow/pkg/queue"
)

// App encapsulates the engine's lifecycle: domain managers, monitor,
// ingestion paths, persistence workers, and the HTTP server.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	managers    []*margin.Manager
	monitor     *monitoring.Monitor
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	// Optional components, nil when their backend is disabled.
	Collector           *usecase.FeedCollector
	Consumer            *pkgkafka.Consumer
	SignalHandler       *usecase.KafkaSignalHandler
	PersistenceConsumer *queue.RedisQueue
	Notifier            domrepo.AlertNotifier
	ClickHouse          *pkgch.Client
	Redis               *cache.RedisCache
}

// New creates the application shell.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	managers []*margin.Manager,
	monitor *monitoring.Monitor,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		logger:      l,
		managers:    managers,
		monitor:     monitor,
		httpHandler: httpHandler,
	}
}

// Run starts every component and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	serverOpts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, xhttp.WithHTTPMetrics(l, time.Second))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, serverOpts...)

	for _, m := range a.managers {
		m.Start(ctx)
	}
	a.monitor.Start(ctx)

	if a.PersistenceConsumer != nil {
		if err := a.PersistenceConsumer.Start(); err != nil {
			l.Error("persistence queue start error", applogger.Error(err))
		} else {
			l.Info("persistence queue started")
		}
	}

	if a.Consumer != nil && a.SignalHandler != nil {
		a.Consumer.RegisterHandler(a.SignalHandler)
		go func() {
			if err := a.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.SignalHandler.Topic()))
	}

	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			l.Error("feed collector start error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("engine running", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops components in reverse dependency order: ingestion first so
// nothing new enters, then processing, then storage.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	if a.Collector != nil {
		if err := a.Collector.Shutdown(); err != nil {
			l.Warn("feed collector stop error", applogger.Error(err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	a.monitor.Stop()
	for _, m := range a.managers {
		m.Stop()
	}

	if a.PersistenceConsumer != nil {
		if err := a.PersistenceConsumer.Stop(shutdownCtx); err != nil {
			l.Warn("persistence queue stop error", applogger.Error(err))
		}
	}
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			l.Warn("alert notifier close error", applogger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	l.RemoveCollector()

	l.Info("shutdown complete")
	return nil
}
