package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/api"
	"github.com/NehoraiHadad/podcasto-engine/internal/billing"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/config"
	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/ai"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/blob"
	redisclient "github.com/NehoraiHadad/podcasto-engine/internal/infra/redis"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/memory"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/postgres"
	"github.com/NehoraiHadad/podcasto-engine/internal/pipeline"
)

// Repos bundles every repository the engine and CLI commands work with.
type Repos struct {
	Episodes  storage.EpisodeRepository
	Events    storage.CostEventRepository
	Summaries storage.CostSummaryRepository
	Logs      storage.ProcessingLogRepository
	Prices    storage.PriceRepository
}

// Engine is the main application struct that manages the service lifecycle.
type Engine struct {
	cfg         *config.AppConfig
	repos       Repos
	db          *postgres.DB
	store       *memory.MemoryStorage
	redisClient *redisclient.Client
	blobStore   *blob.Store
	recorder    *billing.Recorder
	aggregator  *billing.Aggregator
	rollup      *billing.RollupWorker
	tracker     *pipeline.Tracker
	runner      *pipeline.Runner
	apiServer   *api.Server
	log         *slog.Logger
}

// NewEngine creates an Engine with all dependencies initialized. Without a
// database URL the engine runs on in-memory storage; without a Redis URL the
// runner stays idle.
func NewEngine(ctx context.Context, cfg *config.AppConfig) (*Engine, error) {
	e := &Engine{
		cfg: cfg,
		log: slog.Default().With("component", "engine"),
	}

	if err := e.initStorage(ctx); err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		e.redisClient = client
	}

	if cfg.Blob.Endpoint != "" {
		store, err := blob.NewStore(cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("failed to init blob store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		e.blobStore = store
	}

	e.recorder = billing.NewRecorder(e.repos.Events, e.repos.Prices, cfg.Billing.AllowMissingPrice)
	e.aggregator = billing.NewAggregator(e.repos.Events, e.repos.Summaries)
	e.rollup = billing.NewRollupWorker(cfg.Billing.RollupInterval, e.repos.Events, e.aggregator)
	e.tracker = pipeline.NewTracker(e.repos.Logs, e.repos.Episodes)

	gemini := ai.NewGeminiClient(cfg.Providers.Gemini)
	texts := []ai.TextGenerator{gemini}
	images := []ai.ImageGenerator{gemini}
	for _, fc := range cfg.Providers.GeminiFallbacks {
		fb := ai.NewGeminiClient(fc)
		texts = append(texts, fb)
		images = append(images, fb)
	}

	speech := []ai.SpeechSynthesizer{ai.NewGoogleTTSClient(cfg.Providers.TTS)}
	for _, fc := range cfg.Providers.TTSFallbacks {
		speech = append(speech, ai.NewGoogleTTSClient(fc))
	}

	runnerCfg := pipeline.RunnerConfig{
		Episodes:   e.repos.Episodes,
		Tracker:    e.tracker,
		Recorder:   e.recorder,
		Aggregator: e.aggregator,
		Text:       texts,
		Image:      images,
		TTS:        speech,
		Policy:     cfg.Providers.Retry,
		Poll:       cfg.Pipeline.PollInterval,
	}
	if e.redisClient != nil {
		runnerCfg.Queue = e.redisClient
	}
	if e.blobStore != nil {
		runnerCfg.Store = e.blobStore
	}
	e.runner = pipeline.NewRunner(runnerCfg)

	e.apiServer = api.NewServer(
		e.repos.Episodes,
		e.repos.Events,
		e.repos.Summaries,
		e.repos.Logs,
		e.aggregator,
		e.healthDeps(),
		cfg.Server.Port,
	)

	return e, nil
}

func (e *Engine) initStorage(ctx context.Context) error {
	if e.cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, e.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}

		e.db = db
		e.repos = Repos{
			Episodes:  postgres.NewEpisodeRepo(db),
			Events:    postgres.NewCostEventRepo(db),
			Summaries: postgres.NewSummaryRepo(db),
			Logs:      postgres.NewProcessingLogRepo(db),
			Prices:    postgres.NewPriceRepo(db),
		}
		e.log.Info("Using PostgreSQL storage")
		return nil
	}

	store := memory.NewMemoryStorage()
	seedMemoryPrices(store)
	e.store = store
	e.repos = Repos{
		Episodes:  memory.NewEpisodeRepo(store),
		Events:    memory.NewCostEventRepo(store),
		Summaries: memory.NewSummaryRepo(store),
		Logs:      memory.NewProcessingLogRepo(store),
		Prices:    memory.NewPriceRepo(store),
	}
	e.log.Info("Using Memory storage")
	return nil
}

// healthDeps lists the backing services the health endpoints probe.
func (e *Engine) healthDeps() []api.Dependency {
	var deps []api.Dependency
	if e.db != nil {
		deps = append(deps, api.Dependency{Name: "postgres", Check: e.db.Health})
	}
	if e.redisClient != nil {
		deps = append(deps, api.Dependency{Name: "redis", Check: e.redisClient.Health})
	}
	return deps
}

// Repos returns the repository bundle, for CLI commands.
func (e *Engine) Repos() Repos { return e.repos }

// Aggregator returns the cost aggregator, for CLI commands.
func (e *Engine) Aggregator() *billing.Aggregator { return e.aggregator }

// Queue returns the Redis client, nil when not configured.
func (e *Engine) Queue() *redisclient.Client { return e.redisClient }

// Submit creates a pending episode and queues it for generation.
func (e *Engine) Submit(ctx context.Context, ep *domain.Episode) error {
	ep.Status = domain.EpisodeStatusPending
	if err := e.repos.Episodes.Create(ctx, ep); err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}
	if e.redisClient == nil {
		return nil
	}
	if err := e.redisClient.EnqueueEpisode(ctx, ep.ID); err != nil {
		return fmt.Errorf("failed to enqueue episode: %w", err)
	}
	return nil
}

// Start starts the engine and all its components.
func (e *Engine) Start(ctx context.Context) error {
	go func() {
		if err := e.apiServer.Start(); err != nil {
			e.log.Error("API server failed", "error", err)
		}
	}()

	if e.db != nil {
		e.db.StartMetricsCollector(ctx)
	}

	go e.runner.Start(ctx)
	go e.rollup.Start(ctx)

	return nil
}

// Stop stops the engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	return e.apiServer.Stop(ctx)
}

// seedMemoryPrices mirrors the migration seed so memory mode prices the same
// services the database does.
func seedMemoryPrices(store *memory.MemoryStorage) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []struct {
		service string
		unit    string
		price   string
	}{
		{"gemini-text", "token", "0.00000075"},
		{"gemini-image", "image", "0.04"},
		{"google-tts", "character", "0.000016"},
		{"blob-put", "operation", "0.000005"},
		{"blob-get", "operation", "0.0000004"},
		{"blob-bytes", "gigabyte", "0.023"},
		{"email-send", "message", "0.0001"},
		{"queue-publish", "message", "0.0000004"},
	} {
		store.SeedPrice(&domain.ServicePrice{
			Service:       p.service,
			Unit:          p.unit,
			UnitPrice:     decimal.RequireFromString(p.price),
			EffectiveFrom: epoch,
		})
	}
}
