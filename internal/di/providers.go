package di

import (
	"context"
	"fmt"
	"time"

	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/handler/api"
	mid "PairPulse/internal/middleware"
	internalrepo "PairPulse/internal/repository"
	"PairPulse/internal/service/binance"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/services/tickbuffer"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/blob"
	"PairPulse/pkg/cache"
	pkgch "PairPulse/pkg/clickhouse"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	pkgkafka "PairPulse/pkg/kafka"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
	"PairPulse/pkg/postgres"
	"PairPulse/pkg/server"
	"PairPulse/pkg/util"
)

const initTimeout = 15 * time.Second

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. The error digest collector is attached
// here, before any child logger is derived, so every component reports to it.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "pairpulse",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AttachCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l, nil
}

func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideTickBuffer(cfg *config.Config, m domrepo.Metrics) *tickbuffer.Buffer {
	tb := cfg.Analytics.TickBuffer
	return tickbuffer.New(
		tickbuffer.WithMaxCount(tb.MaxCount),
		tickbuffer.WithMaxAge(tb.MaxAge),
		tickbuffer.WithOutOfOrderTolerance(tb.OutOfOrderTolerance),
		tickbuffer.WithMetrics(m),
	)
}

// ProvideTickStore connects the configured backend and prepares its schema.
// It returns nil when storage is disabled.
func ProvideTickStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (domrepo.TickStore, error) {
	var store domrepo.TickStore
	switch cfg.Storage.Backend {
	case "clickhouse":
		ch := cfg.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithMaxConnections(ch.MaxConnections),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
			pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewClickHouseTickStore(client, l)
	case "postgres":
		pctx, cancel := context.WithTimeout(ctx, initTimeout)
		defer cancel()
		client, err := postgres.NewClient(pctx,
			postgres.WithDSN(cfg.Postgres.DSN),
			postgres.WithMaxConns(cfg.Postgres.MaxConns),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres client: %w", err)
		}
		store = internalrepo.NewPostgresTickStore(client, l)
	default:
		return nil, nil
	}

	ictx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := store.Init(ictx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s schema: %w", cfg.Storage.Backend, err)
	}
	l.Info("storage ready", logger.String("backend", cfg.Storage.Backend))
	return store, nil
}

// ProvideBatchWriter returns nil without a store.
func ProvideBatchWriter(cfg *config.Config, store domrepo.TickStore, m domrepo.Metrics, l *logger.Logger) *mid.BatchWriter {
	if store == nil {
		return nil
	}
	return mid.NewBatchWriter(store, m,
		mid.WithBatchSize(cfg.Storage.BatchSize),
		mid.WithFlushInterval(cfg.Storage.FlushInterval),
		mid.WithBufferSize(cfg.Storage.BufferSize),
		mid.WithRetry(3, 100*time.Millisecond, 5*time.Second),
		mid.WithLogger(l),
	)
}

// ProvideSnapshotPublisher returns nil when Kafka is disabled.
func ProvideSnapshotPublisher(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaSnapshotPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.Topics.Snapshots, cfg.Kafka.Topics.Alerts)
}

// ProvideCache returns Redis when enabled and an in-process cache otherwise.
func ProvideCache(ctx context.Context, cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(256), cache.WithMemoryCleanup(time.Minute)), nil
	}
	rctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	rc, err := cache.NewRedisCache(rctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdle, cfg.Redis.Pool.WaitTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideSnapshotCache shares the latest snapshot through Redis. An in-process
// cache would only mirror the orchestrator, so it returns nil then.
func ProvideSnapshotCache(cfg *config.Config, c cache.Service) *internalrepo.SnapshotCache {
	if !cfg.Redis.Enabled {
		return nil
	}
	return internalrepo.NewSnapshotCache(c, cfg.Analytics.Pair(), cfg.Redis.TTL)
}

// ProvideArchive returns nil when S3 is disabled.
func ProvideArchive(ctx context.Context, cfg *config.Config) (*blob.Writer, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}
	s := cfg.S3
	client, err := blob.New(ctx, blob.ClientConfig{
		Endpoint:       s.Endpoint,
		Region:         s.Region,
		Bucket:         s.Bucket,
		AccessKey:      s.AccessKey,
		SecretKey:      s.SecretKey,
		UseSSL:         s.UseSSL,
		ForcePathStyle: s.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return blob.NewWriter(client, s.Prefix), nil
}

// ProvideOrchestrator adds optional collaborators only when present, so no
// typed nil ends up behind an interface.
func ProvideOrchestrator(
	cfg *config.Config,
	buf *tickbuffer.Buffer,
	writer *mid.BatchWriter,
	pub *internalrepo.KafkaSnapshotPublisher,
	snapCache *internalrepo.SnapshotCache,
	m domrepo.Metrics,
	l *logger.Logger,
) (*usecase.AnalyticsOrchestrator, error) {
	a := cfg.Analytics
	oc := usecase.OrchestratorConfig{
		SymbolA:              util.NormalizeSymbol(a.SymbolA),
		SymbolB:              util.NormalizeSymbol(a.SymbolB),
		Interval:             a.Interval,
		UseBars:              a.UseBars,
		AlignBucket:          a.AlignBucket,
		WindowSize:           a.WindowSize,
		Threshold:            a.AlertThreshold,
		MinRegressionSamples: a.MinRegressionSamples,
		Lookback:             a.Lookback,
		SnapshotPoints:       a.SnapshotPoints,
		CyclePeriod:          a.CyclePeriod,
		PersistAnalytics:     cfg.Storage.PersistAnalytics && writer != nil,
		PublishEvery:         cfg.Kafka.PublishEvery,
		AlertHistoryMaxAge:   a.AlertHistoryMaxAge,
		AlertPruneInterval:   a.AlertPruneInterval,
	}
	opts := []usecase.OrchestratorOption{
		usecase.WithStationarityTester(analytics.NewADFTester(a.MinADFSamples)),
		usecase.WithAlertMonitor(alerts.NewMonitor(alerts.WithMetrics(m))),
		usecase.WithOrchestratorMetrics(m),
		usecase.WithOrchestratorLogger(l),
	}
	if writer != nil {
		opts = append(opts, usecase.WithAnalyticsSink(writer))
	}
	if pub != nil {
		opts = append(opts, usecase.WithSnapshotPublisher(pub))
	}
	if snapCache != nil {
		opts = append(opts, usecase.WithSnapshotCache(snapCache))
	}
	return usecase.NewAnalyticsOrchestrator(oc, buf, opts...)
}

func ProvideHistory(
	cfg *config.Config,
	buf *tickbuffer.Buffer,
	orch *usecase.AnalyticsOrchestrator,
	store domrepo.TickStore,
	archive *blob.Writer,
	c cache.Service,
	l *logger.Logger,
) *usecase.HistoryUseCase {
	opts := []usecase.HistoryOption{
		usecase.WithBarsCache(c, cfg.Storage.BarsCacheTTL),
		usecase.WithHistoryLogger(l),
	}
	if store != nil {
		opts = append(opts, usecase.WithStore(store))
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	return usecase.NewHistoryUseCase(orch.Config().Pair(), buf, orch, opts...)
}

func ProvideTickIngestor(buf *tickbuffer.Buffer, writer *mid.BatchWriter, m domrepo.Metrics) *usecase.TickIngestor {
	if writer == nil {
		return usecase.NewTickIngestor(buf, nil, m)
	}
	return usecase.NewTickIngestor(buf, writer, m)
}

// ProvideTickCollector returns nil unless ticks come from the Binance stream.
func ProvideTickCollector(cfg *config.Config, ingest *usecase.TickIngestor, m domrepo.Metrics, l *logger.Logger) *usecase.TickCollector {
	if cfg.Ingestion.Source != "binance" {
		return nil
	}
	b := cfg.Ingestion.Binance
	stream := binance.New(b.WebSocketURL, pairSymbols(cfg), b.ReconnectDelay, b.PingInterval,
		binance.WithLogger(l),
		binance.WithMetrics(m),
	)
	return usecase.NewTickCollector(stream, ingest, m, l)
}

// ProvideKafkaConsumer returns nil unless ticks come from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, ingest *usecase.TickIngestor, m domrepo.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Ingestion.Source != "kafka" {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	h := usecase.NewKafkaTicksHandler(cfg.Kafka.Topics.Ticks, ingest, m)
	consumer.RegisterHandler(h)
	consumer.SetHook(h.Hook())
	return consumer, nil
}

func ProvideAnalyticsHandler(
	cfg *config.Config,
	l *logger.Logger,
	orch *usecase.AnalyticsOrchestrator,
	history *usecase.HistoryUseCase,
	snapCache *internalrepo.SnapshotCache,
) *api.AnalyticsHandler {
	limiter := ratelimit.New(cfg.Server.ADFRatePerMinute)
	if snapCache == nil {
		return api.NewAnalyticsHandler(l, orch, history, limiter, nil)
	}
	return api.NewAnalyticsHandler(l, orch, history, limiter, snapCache)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.AnalyticsHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(l, []xhttp.Handler{h}, opts...)
}

// ProvideApp registers components in shutdown order: ingestion, analytics and
// HTTP stop first, the batch writer drains last. Closers run in reverse, so
// the log digest is flushed before the producer closes.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	buf *tickbuffer.Buffer,
	store domrepo.TickStore,
	writer *mid.BatchWriter,
	pub *internalrepo.KafkaSnapshotPublisher,
	c cache.Service,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	orch *usecase.AnalyticsOrchestrator,
	srv *xhttp.Server,
) *server.App {
	app := server.New(l)

	if store != nil {
		app.OnClose("tick-store", store.Close)
	}
	app.OnClose("cache", c.Close)
	if pub != nil {
		app.OnClose("kafka-producer", pub.Close)
	}
	app.OnClose("log-collector", func() error {
		l.DetachCollector()
		return nil
	})

	if writer != nil {
		app.AddSink("batch-writer", writer.Run)
	}
	if collector != nil {
		app.Add("binance-collector", collector.Run)
	}
	if consumer != nil {
		app.Add("kafka-consumer", func(ctx context.Context) error {
			if err := consumer.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return consumer.Stop(sctx)
		})
	}
	if store != nil {
		// must complete before any live tick is buffered
		app.BeforeStart("tick-replay", func(ctx context.Context) error {
			n, err := usecase.ReplayTicks(ctx, store, buf, pairSymbols(cfg), cfg.Storage.ReplayWindow, cfg.Analytics.TickBuffer.MaxCount, l)
			if err != nil {
				l.Warn("tick replay incomplete", logger.Int("replayed", n), logger.Error(err))
			}
			return ctx.Err()
		})
	}
	app.Add("analytics", orch.Run)
	app.Add("http", srv.Run)
	return app
}

func pairSymbols(cfg *config.Config) []string {
	return []string{util.NormalizeSymbol(cfg.Analytics.SymbolA), util.NormalizeSymbol(cfg.Analytics.SymbolB)}
}
