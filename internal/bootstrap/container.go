package bootstrap

import (
	"context"
	"log"
	"time"

	"homehub-be/internal/config"
	"homehub-be/internal/controller"
	"homehub-be/internal/pkg/logger"
	"homehub-be/internal/repository/memory"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/internal/service"
	"homehub-be/pkg/llm"
	"homehub-be/pkg/llm/factory"
	"homehub-be/pkg/research/acquisition"
	"homehub-be/pkg/research/coord"
	"homehub-be/pkg/research/executor"
	"homehub-be/pkg/research/notify"
	"homehub-be/pkg/research/orchestrator"
	"homehub-be/pkg/research/planner"
	"homehub-be/pkg/research/scorer"
	"homehub-be/pkg/research/synthesizer"

	pktNats "homehub-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ResearchController controller.IResearchController

	// Services (exposed for main.go and researchctl)
	ResearchService service.IResearchService
	ConsumerService service.IResearchConsumerService
	Orchestrator    *orchestrator.Orchestrator

	UnitOfWorkFactory unitofwork.RepositoryFactory
	Logger            logger.ILogger

	closers []func()
}

// NewContainer wires the research engine. A nil db runs everything on the
// in-memory store; Redis and NATS are optional.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	var sysLogger *logger.ZapLogger
	if cfg.App.LogToConsole {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	} else {
		sysLogger = logger.NewIsolatedLogger(cfg.App.LogFilePath)
	}
	c := &Container{Logger: sysLogger}

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Printf("[WARN] DB_CONNECTION_STRING is empty, research runs are kept in memory only")
		uowFactory = memory.NewResearchStore().NewRepositoryFactory()
	}
	c.UnitOfWorkFactory = uowFactory

	// 2. Event Bus (run queue)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 2.5 Infrastructure
	// NATS
	var eventPublisher notify.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// Redis
	var coordinator coord.Coordinator = coord.NewMemoryCoordinator()
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v. Run locks stay in process", err)
			_ = rdb.Close()
		} else {
			coordinator = coord.NewRedisCoordinator(rdb)
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
		cancel()
	}

	// 3. LLM
	var completer llm.StructuredCompleter
	llmProvider, err := factory.NewLLMProvider(ctx, factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.OllamaBaseURL,
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		log.Printf("[WARN] Failed to initialize LLM Provider: %v. Plans and reports use deterministic fallbacks", err)
	} else {
		completer = llm.NewStructuredCompleter(llmProvider, cfg.Research.LLMAttempts)
		if closer, ok := llmProvider.(interface{ Close() error }); ok {
			c.closers = append(c.closers, func() { _ = closer.Close() })
		}
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	}

	// 4. Evidence acquisition
	searcher := newSearcher(ctx, cfg)

	var renderer acquisition.Renderer
	if cfg.Research.UseBrowser {
		renderer = acquisition.NewChromeRenderer(cfg.Research.BrowserTimeout)
		log.Printf("[INFO] Headless browser fallback enabled")
	}
	fetcher := acquisition.NewHTTPFetcher(acquisition.FetcherOptions{
		Timeout:  cfg.Research.FetchTimeout,
		MaxChars: cfg.Research.FetchMaxChars,
		CacheTTL: cfg.Research.PageCacheTTL,
		Renderer: renderer,
	}, sysLogger)

	// 5. Research engine
	subQuestionExecutor := executor.NewSubQuestionExecutor(
		uowFactory,
		searcher,
		fetcher,
		scorer.NewLexicalScorer(),
		completer,
		sysLogger,
		executor.Options{
			SearchLimit:      cfg.Research.SearchLimit,
			FetchPerRound:    cfg.Research.FetchPerRound,
			FetchConcurrency: cfg.Research.FetchConcurrency,
		},
	)
	orch := orchestrator.New(
		uowFactory,
		subQuestionExecutor,
		synthesizer.NewLLMSynthesizer(completer, sysLogger),
		coordinator,
		notify.NewBusNotifier(eventPublisher, sysLogger),
		sysLogger,
		orchestrator.Config{Parallelism: cfg.Research.Parallelism},
	)

	publisherService := service.NewPublisherService(cfg.Research.RunTopic, pubSub)
	consumerService := service.NewResearchConsumerService(
		pubSub,
		cfg.Research.RunTopic,
		orch,
		sysLogger,
		cfg.Research.MaxConcurrentRuns,
	)
	researchService := service.NewResearchService(
		uowFactory,
		planner.NewLLMPlanner(completer, sysLogger),
		publisherService,
		coordinator,
		service.NewEventTaskGateway(eventPublisher),
		sysLogger,
	)

	// 6. Controllers
	c.ResearchController = controller.NewResearchController(researchService)
	c.ResearchService = researchService
	c.ConsumerService = consumerService
	c.Orchestrator = orch
	return c
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "gemini":
		return cfg.Keys.GoogleGemini
	case "huggingface":
		return cfg.Keys.HuggingFace
	}
	return ""
}

func newSearcher(ctx context.Context, cfg *config.Config) acquisition.Searcher {
	var base acquisition.Searcher
	switch {
	case cfg.Research.SearchEndpoint != "":
		base = acquisition.NewJSONSearcher(cfg.Research.SearchEndpoint, cfg.Keys.SearchEndpointKey, cfg.Research.FetchTimeout)
		log.Printf("[INFO] Using JSON search endpoint: %s", cfg.Research.SearchEndpoint)
	case cfg.Keys.GoogleSearch != "" && cfg.Keys.GoogleSearchEngine != "":
		google, err := acquisition.NewGoogleSearcher(ctx, cfg.Keys.GoogleSearch, cfg.Keys.GoogleSearchEngine)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Google Custom Search: %v", err)
		} else {
			base = google
			log.Printf("[INFO] Using Google Custom Search")
		}
	}
	if base == nil {
		// Every search fails and runs end without evidence, explained in their warnings.
		log.Printf("[WARN] No search backend configured (RESEARCH_SEARCH_ENDPOINT or GOOGLE_SEARCH_API_KEY + GOOGLE_SEARCH_ENGINE_ID)")
		base = acquisition.NewJSONSearcher("", "", cfg.Research.FetchTimeout)
	}
	return acquisition.WithRetry(base, cfg.Research.SearchRetries, 500*time.Millisecond)
}
