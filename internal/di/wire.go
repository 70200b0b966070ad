//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PulsePrice/internal/service/ratelimit"
	"PulsePrice/internal/usecase"
	"PulsePrice/pkg/config"
	"PulsePrice/pkg/server"
)

var infraSet = wire.NewSet(
	ProvidePrometheusRegistry,
	ProvideMetrics,
	ProvideAPIMetrics,
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideRedisCache,
	ProvideClickHouseClient,
)

var repositorySet = wire.NewSet(
	ProvideTokenRegistry,
	ProvideEventCounter,
	ProvideContentStore,
	ProvideKafkaConsumer,
	ProvideAttestation,
	ProvideStateStore,
	ProvidePriceStore,
	ProvidePriceArchive,
	ProvideBatchSinks,
	ProvideSinkPipeline,
)

var engineSet = wire.NewSet(
	ProvideConfigHolder,
	ProvideCandleStore,
	usecase.NewTokenLocks,
	ProvideMetricsAggregator,
	ProvidePricePipeline,
	ProvideStreamBroadcaster,
	ProvideScheduler,
	ProvideEngine,
)

var transportSet = wire.NewSet(
	ratelimit.New,
	ProvideHTTPHandler,
	ProvideHTTPServer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		repositorySet,
		engineSet,
		transportSet,
		ProvideApp,
	)
	return nil, nil, nil
}
