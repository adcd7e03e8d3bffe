//go:build wireinject
// +build wireinject

package di

import (
	"FinPWA/pkg/config"
	"FinPWA/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCacheStorage,
		ProvideNetwork,
		ProvideClickHouseClient,

		// Repositories
		ProvideJournalStorage,
		ProvideJournalPublisher,

		// Use cases
		ProvideJournalProcessor,
		ProvideJournalPipeline,
		ProvideHub,
		ProvideWorker,
		ProvideKafkaConsumer,
		ProvideConsumerHandlers,
		ProvideSyncQueue,

		// HTTP
		ProvideLimiter,
		ProvideHTTPHandlers,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
