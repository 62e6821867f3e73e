//go:build wireinject
// +build wireinject

package di

import (
	"MarginFlow/pkg/config"
	"MarginFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Core engine
		ProvideRouter,
		ProvideManagers,
		ProvideEngine,
		ProvideMonitor,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideEventStore,
		ProvideCacheService,
		ProvideSnapshotCache,

		// Ingestion and persistence
		ProvideSignalStream,
		ProvideFeedCollector,
		ProvideSignalHandler,
		ProvidePersistenceQueues,
		ProvideAlertNotifier,

		// HTTP and application shell
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
