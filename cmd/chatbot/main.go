package main

import (
	"context"
	"database/sql"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ahabibm4/chatbot/internal/chat"
	chatconfig "github.com/Ahabibm4/chatbot/internal/config"
	"github.com/Ahabibm4/chatbot/internal/intent"
	"github.com/Ahabibm4/chatbot/internal/memory"
	"github.com/Ahabibm4/chatbot/internal/orchestration"
	"github.com/Ahabibm4/chatbot/internal/retrieval"
	"github.com/Ahabibm4/chatbot/internal/tools"
	"github.com/Ahabibm4/chatbot/internal/workflow"
	"github.com/Ahabibm4/chatbot/pkg/auth"
	"github.com/Ahabibm4/chatbot/pkg/clients"
	"github.com/Ahabibm4/chatbot/pkg/config"
	"github.com/Ahabibm4/chatbot/pkg/database"
	"github.com/Ahabibm4/chatbot/pkg/kafka"
	"github.com/Ahabibm4/chatbot/pkg/llm"
	"github.com/Ahabibm4/chatbot/pkg/logging"
	"github.com/Ahabibm4/chatbot/pkg/monitoring"
	pkgredis "github.com/Ahabibm4/chatbot/pkg/redis"
	"github.com/Ahabibm4/chatbot/pkg/server"
	"github.com/Ahabibm4/chatbot/pkg/version"
)

const serviceName = "chatbot"

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService(serviceName)

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithFields(version.GetInfo().Fields()).Info("Starting NetCourier chatbot")

	cfg, err := chatconfig.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"JWT_SECRET":     cfg.JWTSecret,
		"MEMORY_BACKEND": cfg.MemoryBackend,
	}))

	// Memory backend
	var db *sql.DB
	var store memory.Service
	switch cfg.MemoryBackend {
	case chatconfig.BackendMemory:
		logger.Warn("Using in-memory conversation store; nothing survives a restart")
		store = memory.NewInMemoryStore()
	default:
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.DatabaseURL
		db = database.MustConnect(dbConfig, logger)
		defer func() { _ = db.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.EnsureSchema(ctx, db)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
		store = memory.NewPostgresStore(db, logger)
	}

	// Optional Redis cache for workflow checkpoints
	if cfg.Redis.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := pkgredis.NewUniversalClient(ctx, cfg.Redis)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable - workflow cache disabled")
		} else {
			defer func(client goredis.UniversalClient) { _ = client.Close() }(redisClient)
			healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
			store = memory.NewCachedStore(store, redisClient, cfg.WorkflowCacheTTL, logger)
			logger.WithFields(logging.Fields{
				"addrs":       cfg.Redis.Addrs,
				"sentinel":    cfg.Redis.MasterName != "",
				"url_enabled": cfg.Redis.URL != "",
			}).Info("Workflow cache enabled")
		}
	}

	// LLM provider
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.WithError(err).Warn("LLM provider not usable - falling back to template answers")
		provider = llm.NewTemplateProvider()
	}
	logger.WithField("provider", cfg.LLM.Provider).Info("LLM provider configured")

	// Intent routing
	var classifier intent.Classifier
	if cfg.Intent.LLMEnabled {
		classifier = intent.NewLLMClassifier(provider, cfg.IntentMaxTokens, logger)
	}
	router := intent.NewRouter(cfg.Intent, classifier, logger)

	// Retrieval: both retrievers need Postgres, the dense one an embedder too.
	var dense, sparse retrieval.Retriever
	if db != nil {
		sparse = retrieval.NewFullTextRetriever(db, cfg.GlobalTenantID)
		embedder, err := llm.NewEmbeddingClient(cfg.Embedding)
		if err != nil {
			logger.WithError(err).Warn("Embedding client not configured - dense retrieval disabled")
		} else {
			dense = retrieval.NewVectorRetriever(db, embedder, cfg.GlobalTenantID)
		}
	}
	retriever := retrieval.NewHybridRetriever(dense, sparse, cfg.Retrieval, logger)

	// Tool audit: logs always, Kafka when brokers are configured
	audit := tools.MultiAuditSink{tools.NewLogAuditSink(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewKafkaProducer(cfg.KafkaBrokers, serviceName, logger)
		if err != nil {
			logger.WithError(err).Warn("Kafka unavailable - tool audit events stay in logs")
		} else {
			defer func() { _ = producer.Close() }()
			healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
			audit = append(audit, tools.NewKafkaAuditSink(producer, cfg.ToolAuditTopic))
		}
	}

	// Tools
	var toolExecutor chat.ToolExecutor
	if cfg.ToolsBaseURL != "" {
		breaker := clients.DefaultCircuitBreakerConfig()
		breaker.Name = "operations-api"
		api := tools.NewClient(tools.ClientConfig{
			BaseURL:              cfg.ToolsBaseURL,
			APIToken:             cfg.ToolsAPIToken,
			Timeout:              cfg.ToolTimeout,
			Logger:               logger,
			CircuitBreakerConfig: &breaker,
		})
		toolExecutor = tools.NewRegistry(audit, logger, tools.DefaultAdapters(api)...)
		healthChecker.AddCheck("operations-api", monitoring.HTTPServiceHealthCheck("operations-api", cfg.ToolsBaseURL+"/health"))
	} else {
		logger.Warn("TOOLS_BASE_URL not set - tool calls will be denied")
		toolExecutor = tools.NewRegistry(audit, logger)
	}

	chatService := chat.NewService(chat.Dependencies{
		Router:       router,
		Retriever:    retriever,
		Workflow:     workflow.NewEngine(store, logger),
		Tools:        toolExecutor,
		Orchestrator: orchestration.NewService(provider, cfg.Orchestrator, logger),
		Memory:       store,
	}, cfg.Chat, logger)

	// Setup router with unified monitoring
	httpRouter := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)

	apiKeys, err := auth.ParseAPIKeys(cfg.APIKeys)
	if err != nil {
		logger.WithError(err).Fatal("Invalid API_KEYS")
	}
	api := httpRouter.Group("/api")
	api.Use(auth.JWTAuthMiddleware([]byte(cfg.JWTSecret), auth.WithAPIKeys(apiKeys)))
	chat.RegisterRoutes(api, chat.NewHandler(chatService, store, logger))

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig(serviceName, cfg.Port)
	if err := server.Start(serverConfig, httpRouter, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
