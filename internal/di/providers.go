package di

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"LatentTrader/internal/domain/models"
	"LatentTrader/internal/domain/repository"
	"LatentTrader/internal/handler/api"
	mid "LatentTrader/internal/middleware"
	internalrepo "LatentTrader/internal/repository"
	"LatentTrader/internal/service/coinbase"
	"LatentTrader/internal/services/decision"
	"LatentTrader/internal/usecase"
	"LatentTrader/pkg/cache"
	pkgch "LatentTrader/pkg/clickhouse"
	"LatentTrader/pkg/config"
	xhttp "LatentTrader/pkg/http"
	pkgkafka "LatentTrader/pkg/kafka"
	applogger "LatentTrader/pkg/logger"
	"LatentTrader/pkg/metrics"
	"LatentTrader/pkg/queue"
	"LatentTrader/pkg/server"

	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Components: cfg.Log.Components,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis. The job queue always runs on it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache picks the model cache backend named by cache.driver.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	case "redis":
		return rc
	default:
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
			cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
	}
}

// ProvideModelStore persists trained models in the cache.
func ProvideModelStore(cfg *config.Config, c cache.Service, l *applogger.Logger) repository.ModelStore {
	return internalrepo.NewModelCache(c, cfg.Cache.ModelTTL, cfg.Cache.LockTTL, l.With("model_cache"))
}

// ProvideClickHouseClient creates a read-only ClickHouse client when
// history comes from ClickHouse, nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.History.Source != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithReadOnly(true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse health: %w", err)
	}
	return client, nil
}

// ProvideCandleStore selects the historical candle source.
func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.CandleStore, error) {
	if ch != nil {
		store, err := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Table, l.With("candles"))
		if err != nil {
			return nil, fmt.Errorf("clickhouse candles: %w", err)
		}
		return store, nil
	}
	return coinbase.NewREST(cfg.Coinbase.RESTURL,
		coinbase.WithRateLimit(cfg.Coinbase.RatePerSecond, cfg.Coinbase.RateBurst),
		coinbase.WithRESTLogger(l.With("candles")),
	), nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
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

// ProvideIntentPublisher wraps the producer for trade intents and
// aggregated error logs. Nil without a producer.
func ProvideIntentPublisher(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaIntentPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaIntentPublisher(producer, cfg.Kafka.IntentsTopic)
}

func ProvideModelRegistry(store repository.ModelStore, l *applogger.Logger) *usecase.ModelRegistry {
	return usecase.NewModelRegistry(store, l.With("registry"))
}

// ProvideTrainer builds the batch pipeline from the engine section.
func ProvideTrainer(
	cfg *config.Config,
	candles repository.CandleStore,
	store repository.ModelStore,
	registry *usecase.ModelRegistry,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.Trainer, error) {
	tr, err := usecase.NewTrainer(usecase.TrainerConfig{
		WindowSize:      cfg.Engine.WindowSize,
		Clusters:        cfg.Engine.Clusters,
		Policy:          cfg.Engine.Policy,
		Weight:          cfg.Engine.Weight,
		Normalizer:      cfg.Engine.Normalizer,
		TypeFilter:      cfg.Engine.TypeFilter,
		SetFilter:       cfg.Engine.SetFilter,
		Workers:         cfg.Engine.Workers,
		Seed:            cfg.Engine.Seed,
		MaxIterations:   cfg.Engine.MaxIterations,
		VolumeWeighting: cfg.Engine.VolumeWeighting,
	}, candles, store, registry, m, l.With("trainer"))
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	return tr, nil
}

func ProvideBacktester(cfg *config.Config, tr *usecase.Trainer, l *applogger.Logger) *usecase.Backtester {
	return usecase.NewBacktester(tr, cfg.Engine.Workers, l.With("backtest"))
}

// ProvideJobQueue creates the Redis queue that runs training jobs. The
// HTTP handler enqueues on it and its workers consume.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, tr *usecase.Trainer, l *applogger.Logger) *queue.RedisQueue {
	q := queue.NewRedisQueue(l.With("queue"), &queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
	}, rc.Client())
	q.Register(usecase.NewTrainJob(tr, l.With("train_job")))
	return q
}

// ProvideDecisionPolicy resolves agent.policy.
func ProvideDecisionPolicy(cfg *config.Config, registry *usecase.ModelRegistry) decision.Policy {
	sizing := decision.Sizing{SellQty: cfg.Agent.SellQty, BuyCash: cfg.Agent.BuyCash}
	if cfg.Agent.Policy == "latent_source" {
		return decision.LatentSource{
			Sizing:     sizing,
			Predictor:  registry,
			WindowSize: cfg.Engine.WindowSize,
			Threshold:  cfg.Agent.Threshold,
		}
	}
	return decision.Crossover{Sizing: sizing}
}

func ProvideAgent(
	cfg *config.Config,
	policy decision.Policy,
	pub *internalrepo.KafkaIntentPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.StreamingAgent {
	var intents repository.IntentPublisher
	if pub != nil {
		intents = pub
	}
	return usecase.NewStreamingAgent(usecase.AgentConfig{
		Product:  cfg.Agent.Product,
		Capacity: cfg.Agent.Capacity,
		Cash:     cfg.Agent.Cash,
		Asset:    cfg.Agent.Asset,
	}, policy, intents, m, l.With("agent"))
}

// ProvideEventPipeline sits between either event source and the agent.
func ProvideEventPipeline(cfg *config.Config, agent *usecase.StreamingAgent, m repository.Metrics, l *applogger.Logger) *mid.EventPipeline {
	kinds := make([]models.EventKind, 0, len(cfg.Agent.Throttle.Kinds))
	for _, k := range cfg.Agent.Throttle.Kinds {
		kinds = append(kinds, models.EventKind(strings.ToUpper(k)))
	}
	return mid.NewEventPipeline(agent, m,
		mid.WithBufferSize(cfg.Agent.BufferSize),
		mid.WithThrottle(cfg.Agent.Throttle.PerSecond, cfg.Agent.Throttle.Burst, kinds...),
		mid.WithLogger(l.With("pipeline")),
	)
}

// ProvideEventCollector reads the Coinbase websocket feed. Nil when events
// come from Kafka.
func ProvideEventCollector(cfg *config.Config, pipe *mid.EventPipeline, m repository.Metrics, l *applogger.Logger) *usecase.EventCollector {
	if cfg.Agent.Source != "websocket" {
		return nil
	}
	opts := []coinbase.StreamOption{
		coinbase.WithReconnectDelay(cfg.Coinbase.ReconnectDelay),
		coinbase.WithPingInterval(cfg.Coinbase.PingInterval),
		coinbase.WithStreamLogger(l.With("coinbase")),
		coinbase.WithStreamMetrics(m),
	}
	if len(cfg.Coinbase.Channels) > 0 {
		opts = append(opts, coinbase.WithChannels(cfg.Coinbase.Channels...))
	}
	stream := coinbase.NewStream(cfg.Coinbase.WebSocketURL, []string{cfg.Agent.Product}, opts...)
	return usecase.NewEventCollector(stream, pipe, m, l.With("collector"))
}

// ProvideKafkaConsumer creates the consumer for replayed feed events. Nil
// unless agent.source is kafka.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Agent.Source != "kafka" {
		return nil, nil
	}
	cl := l.With("kafka")
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				ctx = pkgkafka.WithStartTime(ctx, time.Now())
				return pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km)), km, data, nil
			},
			After: func(ctx context.Context, topic string, km kafka.Message, _ []byte, _ error) {
				start, ok := pkgkafka.StartTime(ctx)
				if !ok {
					return
				}
				if d := time.Since(start); d > cfg.Server.SlowThreshold {
					cl.Warn("slow kafka message",
						applogger.String("topic", topic),
						applogger.Int64("offset", km.Offset),
						applogger.Duration("took", d))
				}
			},
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				cl.Warn("kafka handle attempt failed",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.Int64("offset", km.Offset),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Error(err))
			},
		},
	))
	return consumer, nil
}

// ProvideKafkaEventsHandler decodes replayed feed events. Nil unless
// agent.source is kafka.
func ProvideKafkaEventsHandler(cfg *config.Config, pipe *mid.EventPipeline, m repository.Metrics, l *applogger.Logger) *usecase.KafkaEventsHandler {
	if cfg.Agent.Source != "kafka" {
		return nil
	}
	return usecase.NewKafkaEventsHandler(cfg.Kafka.EventsTopic, pipe, m, l.With("kafka_events"))
}

func ProvideEngineHandler(
	cfg *config.Config,
	registry *usecase.ModelRegistry,
	bt *usecase.Backtester,
	jobs *queue.RedisQueue,
	agent *usecase.StreamingAgent,
	l *applogger.Logger,
) *api.EngineHandler {
	return api.NewEngineHandler(l.With("api"), registry, bt, jobs, agent, cfg.History.Lookback)
}

func ProvideHTTPServer(cfg *config.Config, h *api.EngineHandler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(cfg.Metrics.Path),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l.With("http")),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	registry *usecase.ModelRegistry,
	tr *usecase.Trainer,
	agent *usecase.StreamingAgent,
	jobs *queue.RedisQueue,
	pipe *mid.EventPipeline,
	collector *usecase.EventCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaEventsHandler,
	pub *internalrepo.KafkaIntentPublisher,
	httpServer *xhttp.Server,
	modelCache cache.Service,
	rc *cache.RedisCache,
	ch *pkgch.Client,
) *server.App {
	c := server.Components{
		Logger:        l,
		Registry:      registry,
		Trainer:       tr,
		Agent:         agent,
		Jobs:          jobs,
		Pipeline:      pipe,
		Collector:     collector,
		Consumer:      consumer,
		EventsHandler: kh,
		HTTPServer:    httpServer,
	}
	if pub != nil {
		c.LogPublisher = pub
		c.Closers = append(c.Closers, pub)
	}
	if closer, ok := modelCache.(io.Closer); ok {
		c.Closers = append(c.Closers, closer)
	}
	if cfg.Cache.Driver == "memory" {
		c.Closers = append(c.Closers, rc)
	}
	if ch != nil {
		c.Closers = append(c.Closers, ch)
	}
	return server.New(cfg, c)
}
