package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bookrag/internal/ai"
	"bookrag/internal/answer"
	appsvc "bookrag/internal/app"
	"bookrag/internal/cache"
	"bookrag/internal/chunker"
	"bookrag/internal/config"
	"bookrag/internal/embedding"
	"bookrag/internal/ingest"
	"bookrag/internal/metrics"
	mysqlClient "bookrag/internal/platform/mysql"
	rabbitmqClient "bookrag/internal/platform/rabbitmq"
	redisClient "bookrag/internal/platform/redis"
	"bookrag/internal/relevance"
	"bookrag/internal/retrieval"
	"bookrag/internal/vectorindex"
	"bookrag/internal/vectorindex/memory"
	"bookrag/internal/vectorindex/pinecone"
	"bookrag/internal/vectorindex/sqlindex"
	"bookrag/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	IngestWorker *worker.IngestWorker
	Metrics      *metrics.Metrics
	Gateway      vectorindex.Gateway

	Query   *appsvc.QueryService
	Ingest  *appsvc.IngestService
	Quiz    *appsvc.QuizService
	Catalog *appsvc.CatalogService

	StartedAt time.Time
}

// New loads configuration and builds the application.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return Build(ctx, cfg)
}

// Build connects the enabled infrastructure and wires the pipeline. On
// error every connection opened so far is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{Config: cfg, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if cfg.MySQL.Enabled {
		if app.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Env == "dev"); err != nil {
			return nil, err
		}
	}
	if cfg.Redis.Enabled {
		if app.Redis, err = redisClient.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}
	if cfg.RabbitMQ.Enabled {
		if app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL); err != nil {
			return nil, err
		}
	}

	model, err := ai.New(cfg.LLM.Provider,
		ai.ChatConfig{API: cfg.LLM.API, BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model},
		ai.EmbeddingConfig{API: cfg.Embedding.API, BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey, Model: cfg.Embedding.Model},
		config.Seconds(cfg.LLM.TimeoutSeconds),
	)
	if err != nil {
		return nil, fmt.Errorf("build model client failed: %w", err)
	}

	embedder := embedding.New(model, embeddingOptions(cfg, app)...)

	if app.Gateway, err = newGateway(cfg, app.MySQL); err != nil {
		return nil, err
	}

	retriever := retrieval.New(embedder, app.Gateway, retrieval.Config{
		DefaultNamespace: cfg.Retrieval.DefaultNamespace,
		OverFetch:        cfg.Retrieval.OverFetch,
		Sharded:          cfg.Retrieval.Sharded,
		MaxParallel:      cfg.Retrieval.MaxParallel,
	})
	var classifier relevance.DomainClassifier
	if cfg.LLM.DomainCheck {
		classifier = relevance.NewClassifier(model)
	}
	gate := relevance.NewGate(cfg.Retrieval.MinScore, classifier)
	composer := answer.NewComposer(model)

	ch, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	orchestrator := ingest.New(ch, embedder, app.Gateway,
		ingest.WithConcurrency(cfg.Ingest.Concurrency),
		ingest.WithMetrics(app.Metrics),
		ingest.WithVerifyPolling(time.Duration(cfg.Ingest.VerifySettleMillis)*time.Millisecond, cfg.Ingest.VerifyAttempts),
	)

	var (
		publisher appsvc.JobPublisher
		store     appsvc.JobStore
	)
	if app.MQConn != nil && app.Redis != nil {
		publisher = rabbitmqClient.NewJobPublisher(app.MQConn, cfg.RabbitMQ.IngestQueue)
		store = cache.NewJobStore(app.Redis, config.Seconds(cfg.Ingest.JobTTLSeconds))
	}

	app.Query = appsvc.NewQueryService(retriever, gate, composer, app.Metrics, cfg.Retrieval.DefaultCount, cfg.Retrieval.MaxCount)
	app.Ingest = appsvc.NewIngestService(orchestrator, publisher, store)
	app.Quiz = appsvc.NewQuizService(retriever, gate, composer)
	app.Catalog = appsvc.NewCatalogService(app.Gateway)
	return app, nil
}

func embeddingOptions(cfg *config.Config, app *App) []embedding.Option {
	opts := []embedding.Option{
		embedding.WithMaxRetries(cfg.Embedding.MaxRetries),
		embedding.WithBaseDelay(time.Duration(cfg.Embedding.BaseDelayMillis) * time.Millisecond),
		embedding.WithJitter(cfg.Embedding.Jitter),
		embedding.WithDimension(cfg.Embedding.Dimension),
		embedding.WithMetrics(app.Metrics),
	}
	if cfg.Embedding.RateLimit > 0 {
		opts = append(opts, embedding.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.RateBurst))
	}
	if app.Redis != nil {
		embCache := cache.NewEmbeddingCache(app.Redis, config.Seconds(cfg.Embedding.CacheTTLSeconds))
		opts = append(opts, embedding.WithCache(embCache, cfg.Embedding.Model))
	}
	return opts
}

func newGateway(cfg *config.Config, db *gorm.DB) (vectorindex.Gateway, error) {
	switch cfg.Index.Backend {
	case "memory":
		return memory.NewGateway(), nil
	case "pinecone":
		if cfg.Index.APIKey == "" {
			return nil, fmt.Errorf("pinecone backend requires PINECONE_API_KEY")
		}
		// Indexes without a configured host are described through the
		// control plane on first use.
		gw, err := pinecone.New(pinecone.Config{
			APIKey:          cfg.Index.APIKey,
			Resolver:        vectorindex.StaticResolver(cfg.Index.Hosts, cfg.Index.HostTemplate),
			Timeout:         config.Seconds(cfg.Index.TimeoutSeconds),
			UpsertBatchSize: cfg.Index.UpsertBatchSize,
		})
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "mysql":
		if db == nil {
			return nil, fmt.Errorf("mysql index backend requires mysql.enabled")
		}
		gw := sqlindex.New(db)
		if err := gw.Migrate(); err != nil {
			return nil, fmt.Errorf("auto migrate passages failed: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// StartWorker consumes queued ingestion jobs when asynchronous ingestion is
// configured.
func (a *App) StartWorker(ctx context.Context) error {
	if a.MQConn == nil || !a.Ingest.JobsEnabled() {
		return nil
	}
	a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Ingest, a.Config.RabbitMQ.IngestQueue, a.Config.RabbitMQ.Prefetch)
	if err := a.IngestWorker.Start(ctx); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	return nil
}

// HealthChecks returns a check per connected piece of infrastructure.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if a.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if a.MQConn.IsClosed() {
				return fmt.Errorf("connection closed")
			}
			return nil
		}
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if gw, ok := a.Gateway.(interface{ Close() }); ok {
		gw.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
