// Package config loads the chatbot service configuration from the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ahabibm4/chatbot/internal/chat"
	"github.com/Ahabibm4/chatbot/internal/intent"
	"github.com/Ahabibm4/chatbot/internal/memory"
	"github.com/Ahabibm4/chatbot/internal/orchestration"
	"github.com/Ahabibm4/chatbot/internal/retrieval"
	"github.com/Ahabibm4/chatbot/pkg/config"
	"github.com/Ahabibm4/chatbot/pkg/llm"
	"github.com/Ahabibm4/chatbot/pkg/redis"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	defaultPort        = "18090"
	defaultAuditTopic  = "chat.tool_audit"
	defaultIntentMax   = 512
	defaultToolTimeout = 10 * time.Second
)

// Config stores environment configuration for the chatbot service.
type Config struct {
	Port          string
	MemoryBackend string
	DatabaseURL   string
	JWTSecret     string
	APIKeys       string

	LLM          llm.Config
	Embedding    llm.Config
	Orchestrator orchestration.Config

	Intent          intent.Config
	IntentMaxTokens int

	Retrieval      retrieval.Config
	GlobalTenantID string

	ToolsBaseURL  string
	ToolsAPIToken string
	ToolTimeout   time.Duration

	Redis            redis.Config
	WorkflowCacheTTL time.Duration

	KafkaBrokers   []string
	ToolAuditTopic string

	Chat chat.Config
}

// LoadConfig reads the environment. Missing required values are reported
// together.
func LoadConfig() (Config, error) {
	llmCfg := llm.LoadConfig()
	cfg := Config{
		Port:          config.GetEnv("PORT", defaultPort),
		MemoryBackend: strings.ToLower(config.GetEnv("MEMORY_BACKEND", BackendPostgres)),
		DatabaseURL:   config.GetEnv("DATABASE_URL", ""),
		JWTSecret:     config.GetEnv("JWT_SECRET", ""),
		APIKeys:       config.GetEnv("API_KEYS", ""),

		LLM:       llmCfg,
		Embedding: llm.LoadEmbeddingConfig(),
		Orchestrator: orchestration.Config{
			Temperature:      config.GetEnvFloat("LLM_TEMPERATURE", orchestration.DefaultTemperature),
			MaxTokens:        config.GetEnvInt("LLM_MAX_TOKENS", orchestration.DefaultMaxTokens),
			Timeout:          llmCfg.Timeout,
			MaxContextTokens: config.GetEnvInt("MAX_CONTEXT_TOKENS", orchestration.DefaultMaxContextTokens),
			MaxCitations:     config.GetEnvInt("MAX_CITATIONS", orchestration.DefaultMaxCitations),
		},

		Intent: intent.Config{
			Fallback:            config.GetEnv("INTENT_FALLBACK", intent.DefaultFallback),
			LLMEnabled:          config.GetEnvBool("INTENT_LLM_ENABLED", true),
			ConfidenceThreshold: config.GetEnvFloat("INTENT_CONFIDENCE_THRESHOLD", intent.DefaultConfidenceThreshold),
		},
		IntentMaxTokens: config.GetEnvInt("INTENT_MAX_TOKENS", defaultIntentMax),

		Retrieval: retrieval.Config{
			DenseWeight:  config.GetEnvFloat("RAG_DENSE_WEIGHT", retrieval.DefaultDenseWeight),
			SparseWeight: config.GetEnvFloat("RAG_SPARSE_WEIGHT", retrieval.DefaultSparseWeight),
			Limit:        config.GetEnvInt("RAG_LIMIT", retrieval.DefaultLimit),
			TopK:         config.GetEnvInt("RAG_TOP_K", retrieval.DefaultTopK),
		},
		GlobalTenantID: config.GetEnv("GLOBAL_TENANT_ID", ""),

		ToolsBaseURL:  config.GetEnv("TOOLS_BASE_URL", ""),
		ToolsAPIToken: config.GetEnv("TOOLS_API_TOKEN", ""),
		ToolTimeout:   config.GetEnvDuration("TOOL_TIMEOUT", defaultToolTimeout),

		Redis:            redis.LoadConfig("chatbot"),
		WorkflowCacheTTL: config.GetEnvDuration("WORKFLOW_CACHE_TTL", memory.DefaultCacheTTL),

		KafkaBrokers:   config.GetEnvList("KAFKA_BROKERS"),
		ToolAuditTopic: config.GetEnv("TOOL_AUDIT_TOPIC", defaultAuditTopic),

		Chat: chat.Config{EventBuffer: config.GetEnvInt("EVENT_BUFFER", chat.DefaultEventBuffer)},
	}

	// The template provider needs no credentials, so an unconfigured
	// deployment still answers.
	if cfg.LLM.APIKey == "" && !keyless(cfg.LLM.Provider) {
		cfg.LLM.Provider = "template"
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch cfg.MemoryBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendMemory:
	default:
		return cfg, fmt.Errorf("unknown MEMORY_BACKEND %q", cfg.MemoryBackend)
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// keyless reports providers that run without an API key.
func keyless(provider string) bool {
	switch strings.ToLower(provider) {
	case "ollama", "template":
		return true
	}
	return false
}
