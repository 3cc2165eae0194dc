//go:build wireinject
// +build wireinject

package di

import (
	"LatentTrader/pkg/config"
	"LatentTrader/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideModelStore,
		ProvideCandleStore,
		ProvideIntentPublisher,

		// Engine
		ProvideModelRegistry,
		ProvideTrainer,
		ProvideBacktester,
		ProvideJobQueue,

		// Live path
		ProvideDecisionPolicy,
		ProvideAgent,
		ProvideEventPipeline,
		ProvideEventCollector,
		ProvideKafkaConsumer,
		ProvideKafkaEventsHandler,

		// HTTP
		ProvideEngineHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
