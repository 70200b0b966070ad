package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	"PulsePrice/internal/handler/api"
	mid "PulsePrice/internal/middleware"
	internalrepo "PulsePrice/internal/repository"
	"PulsePrice/internal/service/attestation"
	svccache "PulsePrice/internal/service/cache"
	"PulsePrice/internal/service/contentstore"
	svcmetrics "PulsePrice/internal/service/metrics"
	"PulsePrice/internal/service/ratelimit"
	"PulsePrice/internal/usecase"
	pkgcache "PulsePrice/pkg/cache"
	pkgch "PulsePrice/pkg/clickhouse"
	"PulsePrice/pkg/config"
	xhttp "PulsePrice/pkg/http"
	pkgkafka "PulsePrice/pkg/kafka"
	applogger "PulsePrice/pkg/logger"
	"PulsePrice/pkg/metrics"
	"PulsePrice/pkg/server"
)

// ProvidePrometheusRegistry creates the registry every collector registers on.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

func ProvideAPIMetrics(reg *prometheus.Registry) *svcmetrics.APIMetrics {
	return svcmetrics.NewAPIMetrics(reg)
}

// ProvideKafkaProducer creates the shared Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With the collector enabled and
// Kafka available, repeated error logs are shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logger.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.Threshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is off.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 4*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideTokenRegistry picks the static list or the Redis set.
func ProvideTokenRegistry(cfg *config.Config, rc *pkgcache.RedisCache) (domrepo.TokenRegistry, error) {
	switch cfg.Registry.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis registry: redis is not configured")
		}
		return internalrepo.NewRedisRegistry(rc, cfg.Registry.RedisKey), nil
	default:
		return internalrepo.NewStaticRegistry(cfg.Registry.Tokens), nil
	}
}

// ProvideEventCounter returns the in-process counter fed by Kafka, or nil when
// engagement is read over HTTP.
func ProvideEventCounter(cfg *config.Config) *contentstore.EventCounter {
	if cfg.ContentStore.Backend != "kafka" {
		return nil
	}
	return contentstore.NewEventCounter(cfg.ContentStore.Retention)
}

func ProvideContentStore(cfg *config.Config, counter *contentstore.EventCounter) domrepo.ContentStore {
	if counter != nil {
		return counter
	}
	return contentstore.NewClient(cfg.ContentStore.BaseURL, cfg.ContentStore.Timeout)
}

// ProvideKafkaConsumer consumes engagement events into the counter. It is nil
// unless the kafka content store backend is selected.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, counter *contentstore.EventCounter, m domrepo.Metrics) (*pkgkafka.Consumer, error) {
	if counter == nil {
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
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewEngagementEventsHandler(cfg.ContentStore.KafkaTopic, counter, m))
	consumer.WithConsumerHook(usecase.EngagementValidationHook())
	return consumer, nil
}

// ProvideAttestation returns the attestation client, sharing its score cache
// through Redis when available.
func ProvideAttestation(cfg *config.Config, rc *pkgcache.RedisCache) domrepo.AttestationService {
	if !cfg.Attestation.Enabled {
		return attestation.Disabled{}
	}
	opts := []attestation.Option{
		attestation.WithAPIKey(cfg.Attestation.APIKey),
		attestation.WithTimeout(cfg.Attestation.Timeout),
	}
	if rc != nil {
		opts = append(opts, attestation.WithCache(svccache.NewSharedCache(rc, "attest"), cfg.Attestation.CacheTTL))
	} else {
		opts = append(opts, attestation.WithCache(svccache.NewTTLCache(), cfg.Attestation.CacheTTL))
	}
	return attestation.New(cfg.Attestation.BaseURL, opts...)
}

// ProvideStateStore returns the snapshot store, or nil when persistence is off.
func ProvideStateStore(cfg *config.Config, rc *pkgcache.RedisCache) domrepo.StateStore {
	switch cfg.State.Backend {
	case "memory":
		return internalrepo.NewCacheStateStore(pkgcache.NewMemoryCache(), cfg.State.TTL)
	case "redis":
		if rc != nil {
			return internalrepo.NewCacheStateStore(rc, cfg.State.TTL)
		}
	case "layered":
		if rc != nil {
			return internalrepo.NewCacheStateStore(pkgcache.NewLayeredCache(rc), cfg.State.TTL)
		}
	}
	return nil
}

// ProvidePriceStore creates the ClickHouse archive and its table.
func ProvidePriceStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*internalrepo.ClickHousePriceStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHousePriceStore(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, store.Schema()...)
	if err := ch.InitSchema(ctx, stmts); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

func ProvidePriceArchive(store *internalrepo.ClickHousePriceStore) domrepo.PriceArchive {
	if store == nil {
		return nil
	}
	return store
}

// ProvideBatchSinks collects every enabled sink.
func ProvideBatchSinks(cfg *config.Config, producer *pkgkafka.Producer, store *internalrepo.ClickHousePriceStore, states domrepo.StateStore) []domrepo.BatchSink {
	var sinks []domrepo.BatchSink
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaBatchPublisher(producer, cfg.Kafka.PriceTopic))
	}
	if store != nil {
		sinks = append(sinks, store)
	}
	if s, ok := states.(domrepo.BatchSink); ok {
		sinks = append(sinks, s)
	}
	return sinks
}

func ProvideSinkPipeline(cfg *config.Config, sinks []domrepo.BatchSink, l *applogger.Logger, m domrepo.Metrics) *mid.SinkPipeline {
	return mid.NewSinkPipeline(sinks, l, m,
		mid.WithBufferSize(cfg.Sinks.BufferSize),
		mid.WithRetry(cfg.Sinks.RetryMax, 50*time.Millisecond, 2*time.Second),
	)
}

// EngineConfigFrom converts the startup pricing section into an EngineConfig.
func EngineConfigFrom(p config.PricingConfig) models.EngineConfig {
	weights := make(map[models.EngagementKind]float64, len(p.Weights))
	for k, v := range p.Weights {
		weights[models.EngagementKind(k)] = v
	}
	return models.EngineConfig{
		Weights:              weights,
		EngagementMultiplier: p.EngagementMultiplier,
		DropThreshold:        p.DropThreshold,
		StagnationHours:      p.StagnationHours,
		StagnationDropRate:   p.StagnationDropRate,
		MinPrice:             p.MinPrice,
		UpdateIntervalMs:     p.UpdateIntervalMs,
	}
}

func ProvideConfigHolder(cfg *config.Config) (*usecase.ConfigHolder, error) {
	holder, err := usecase.NewConfigHolder(EngineConfigFrom(cfg.Engine.Pricing))
	if err != nil {
		return nil, fmt.Errorf("engine.pricing: %w", err)
	}
	return holder, nil
}

// ProvideCandleStore seeds unseen tokens at the live minimum price.
func ProvideCandleStore(holder *usecase.ConfigHolder) *usecase.CandleStore {
	return usecase.NewCandleStore(usecase.WithSeedPrice(func() int64 {
		return holder.Get().MinPrice
	}))
}

func ProvideMetricsAggregator(cfg *config.Config, content domrepo.ContentStore, attest domrepo.AttestationService, l *applogger.Logger, m domrepo.Metrics) *usecase.MetricsAggregator {
	return usecase.NewMetricsAggregator(content, attest, l, m,
		usecase.WithSourceTimeout(cfg.Engine.SourceTimeout),
		usecase.WithInitialLookback(cfg.Engine.InitialLookback),
	)
}

func ProvidePricePipeline(agg *usecase.MetricsAggregator, store *usecase.CandleStore, locks *usecase.TokenLocks, l *applogger.Logger, m domrepo.Metrics) *usecase.PricePipeline {
	return usecase.NewPricePipeline(agg, store, locks, l, m)
}

func ProvideStreamBroadcaster(cfg *config.Config, store *usecase.CandleStore, l *applogger.Logger, m domrepo.Metrics) *usecase.StreamBroadcaster {
	return usecase.NewStreamBroadcaster(store.Snapshot, cfg.Stream.SubscriberBuffer, l, m)
}

// ProvideScheduler publishes every tick to stream subscribers and the sinks.
func ProvideScheduler(cfg *config.Config, registry domrepo.TokenRegistry, pipeline *usecase.PricePipeline, holder *usecase.ConfigHolder, broadcaster *usecase.StreamBroadcaster, sinks *mid.SinkPipeline, l *applogger.Logger, m domrepo.Metrics) *usecase.Scheduler {
	return usecase.NewScheduler(registry, pipeline, holder, cfg.Engine.Workers, l, m, broadcaster, sinks)
}

func ProvideEngine(
	registry domrepo.TokenRegistry,
	store *usecase.CandleStore,
	pipeline *usecase.PricePipeline,
	scheduler *usecase.Scheduler,
	broadcaster *usecase.StreamBroadcaster,
	holder *usecase.ConfigHolder,
	states domrepo.StateStore,
	sinks *mid.SinkPipeline,
	l *applogger.Logger,
	m domrepo.Metrics,
) *usecase.Engine {
	return usecase.NewEngine(usecase.EngineDeps{
		Registry:    registry,
		Store:       store,
		Pipeline:    pipeline,
		Scheduler:   scheduler,
		Broadcaster: broadcaster,
		Config:      holder,
		States:      states,
		Publishers:  []usecase.BatchPublisher{broadcaster, sinks},
		Logger:      l,
		Metrics:     m,
	})
}

// ProvideHTTPHandler groups the REST and stream routes.
func ProvideHTTPHandler(cfg *config.Config, engine *usecase.Engine, limiter *ratelimit.Limiter, archive domrepo.PriceArchive, am *svcmetrics.APIMetrics, l *applogger.Logger) xhttp.Handler {
	limit := api.TriggerLimit{Burst: cfg.RateLimit.Capacity, RefillRate: cfg.RateLimit.RefillPerSec}
	return xhttp.Handlers{
		api.NewPriceHandler(l, engine, limiter, limit, archive, am),
		api.NewStreamHandler(l, engine, cfg.Stream.KeepAlive, am),
	}
}

func ProvideHTTPServer(cfg *config.Config, handler xhttp.Handler, l *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(handler, l, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	sinks *mid.SinkPipeline,
	consumer *pkgkafka.Consumer,
	counter *contentstore.EventCounter,
	limiter *ratelimit.Limiter,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(server.Deps{
		Config:       cfg,
		Logger:       l,
		Engine:       engine,
		Sinks:        sinks,
		Consumer:     consumer,
		EventCounter: counter,
		Limiter:      limiter,
		HTTP:         httpServer,
	})
}
