package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
	aiAdapters "incident-analyzer/internal/infra/adapters/ai"
	"incident-analyzer/internal/infra/adapters/index"
	"incident-analyzer/internal/infra/api"
	"incident-analyzer/internal/infra/logging"
	"incident-analyzer/internal/infra/memstore"
	red "incident-analyzer/internal/infra/redis"
	"incident-analyzer/internal/infra/scratch"
	"incident-analyzer/internal/infra/worker"
	"incident-analyzer/internal/usecase"
)

const seedLockKey = "lock:knowledge-seed"

// App holds the wired components shared by the server and the CLIs.
type App struct {
	Config    *config.Config
	Log       *zerolog.Logger
	Analysis  usecase.AnalysisUseCase
	Knowledge usecase.KnowledgeUseCase
	Pipeline  usecase.Pipeline
	Index     adapter.SimilarityIndex
	Pool      *worker.Pool
	Sweeper   *worker.StaleJobSweeper
	Health    api.Health
	Provider  string

	closers []func() error
}

// Build wires providers, the similarity index, the job store and the use
// cases from cfg. Nothing is started.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger, Provider: cfg.AI.Provider}

	gen, emb, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		locker  usecase.SeedLocker
		limiter usecase.AskLimiter
	)
	switch cfg.Index.Backend {
	case "redis":
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Index = red.NewVectorIndex(client, cfg.Index.Prefix)
		locker = red.NewLocker(client)
		if cfg.Pipeline.AskPerMinute > 0 {
			limiter = red.NewRateLimiter(client, cfg.Pipeline.AskPerMinute, time.Minute)
		}
	default:
		a.Index = index.NewMemoryIndex()
		if cfg.Pipeline.AskPerMinute > 0 {
			limiter = memstore.NewRateLimiter(cfg.Pipeline.AskPerMinute)
		}
	}

	opts := usecase.GenerationOptions{
		Model:             cfg.AI.ChatModel,
		Temperature:       0.2,
		MaxOutputTokens:   1200,
		PromptTokenBudget: cfg.Pipeline.PromptTokenBudget,
		MinReferenceScore: cfg.Pipeline.MinReferenceScore,
	}
	tokens := aiAdapters.NewTokenCounter(cfg.AI.ChatModel)
	if cfg.AI.Provider == "none" {
		// offline runs must not fetch BPE tables
		tokens = aiAdapters.EstimateCounter()
	}
	a.Pipeline = usecase.Pipeline{
		Extractor: usecase.NewSignalExtractor(usecase.TriageLimits{
			MaxLinesPerFile: cfg.Pipeline.MaxLinesPerFile,
			MaxTopLines:     cfg.Pipeline.MaxTopLines,
			MaxQueryChars:   cfg.Pipeline.MaxQueryChars,
		}),
		Retriever:   usecase.NewContextRetriever(emb, a.Index, logging.Component(logger, "retriever")),
		Synthesizer: usecase.NewReportSynthesizer(gen, tokens, opts, logging.Component(logger, "synthesizer")),
		Answerer:    usecase.NewQuestionAnswerer(gen, tokens, opts, logging.Component(logger, "answerer")),
	}

	a.Pool = worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logging.Component(logger, "worker"))
	a.Analysis = usecase.NewAnalysisUseCase(
		memstore.NewJobRepo(),
		scratch.NewStore(cfg.Pipeline.ScratchDir),
		a.Pipeline,
		a.Pool,
		limiter,
		usecase.PipelineOptions{TopK: cfg.Index.TopK, JobTimeout: cfg.Pipeline.JobTimeout},
		logging.Component(logger, "orchestrator"),
	)
	// a job is stale once it has outlived twice its own timeout
	a.Sweeper = worker.NewStaleJobSweeper(a.Analysis, 2*cfg.Pipeline.JobTimeout, 0, logging.Component(logger, "sweeper"))
	a.Knowledge = usecase.NewKnowledgeUseCase(emb, a.Index, locker, seedLockKey, logging.Component(logger, "knowledge"))

	a.Health = api.Health{
		Provider: cfg.AI.Provider,
		Index:    cfg.Index.Backend,
		Env: map[string]bool{
			"OPENAI_API_KEY_set": cfg.AI.OpenAIKey != "",
			"GEMINI_API_KEY_set": cfg.AI.GeminiKey != "",
			"REDIS_URL_set":      cfg.Redis.URL != "",
		},
		Docs: a.Index,
	}
	return a, nil
}

// buildProviders returns the generation provider and embedder for cfg. With
// no provider configured, generation always degrades to the rule-based paths
// and embeddings come from the offline hashing embedder.
func buildProviders(ctx context.Context, cfg *config.Config) (adapter.GenerationProvider, adapter.Embedder, error) {
	limits := aiAdapters.Limits{
		MaxConcurrent: cfg.AI.ConcurrentLimit,
		PerSecond:     cfg.AI.RatePerSecond,
		Timeout:       cfg.AI.Timeout,
	}

	var (
		openai *aiAdapters.OpenAIAdapter
		gemini *aiAdapters.GeminiAdapter
		err    error
	)
	if cfg.AI.OpenAIKey != "" && (cfg.AI.Provider == "openai" || cfg.AI.Provider == "multi") {
		openai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.ChatModel, cfg.AI.EmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("openai adapter: %w", err)
		}
	}
	if cfg.AI.GeminiKey != "" && (cfg.AI.Provider == "gemini" || cfg.AI.Provider == "multi") {
		gemini, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiChatModel, cfg.AI.GeminiEmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini adapter: %w", err)
		}
	}

	switch cfg.AI.Provider {
	case "openai":
		return aiAdapters.NewLimitedAI(openai, limits), aiAdapters.NewLimitedEmbedder("openai", openai, limits), nil
	case "gemini":
		return aiAdapters.NewLimitedAI(gemini, limits), aiAdapters.NewLimitedEmbedder("gemini", gemini, limits), nil
	case "multi":
		byProvider := map[string]adapter.GenerationProvider{}
		if openai != nil {
			byProvider["openai"] = aiAdapters.NewLimitedAI(openai, limits)
		}
		if gemini != nil {
			byProvider["gemini"] = aiAdapters.NewLimitedAI(gemini, limits)
		}
		if len(byProvider) == 0 {
			return nil, nil, errors.New("ai.provider multi needs at least one provider key")
		}
		def := "openai"
		var emb adapter.Embedder
		if openai != nil {
			emb = aiAdapters.NewLimitedEmbedder("openai", openai, limits)
		} else {
			def = "gemini"
			emb = aiAdapters.NewLimitedEmbedder("gemini", gemini, limits)
		}
		return aiAdapters.NewMultiAIAdapter(def, byProvider, nil), emb, nil
	default:
		return aiAdapters.NewNoopAIAdapter(), index.NewHashEmbedder(0), nil
	}
}

// Start launches the worker pool and the stale job sweeper.
func (a *App) Start(ctx context.Context) {
	a.Pool.Start(ctx)
	go a.Sweeper.Start(ctx, a.Pool)
}

// SeedIfConfigured indexes index.seed_dir when set. A seeding failure is
// logged; the service still runs without related incidents.
func (a *App) SeedIfConfigured(ctx context.Context) {
	dir := a.Config.Index.SeedDir
	if dir == "" {
		return
	}
	n, err := a.Knowledge.SeedDir(ctx, dir)
	if err != nil {
		a.Log.Error().Err(err).Str("dir", dir).Msg("knowledge seeding failed")
		return
	}
	a.Log.Info().Int("documents", n).Str("dir", dir).Msg("knowledge seeded")
}

// Close stops the pool and releases external clients.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait polls a job until it reaches a terminal stage.
func (a *App) Wait(ctx context.Context, jobID string, poll time.Duration) (model.Job, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		job, err := a.Analysis.Status(ctx, jobID)
		if err != nil {
			return model.Job{}, err
		}
		if job.Stage.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-t.C:
		}
	}
}
