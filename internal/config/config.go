package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Cosmos   CosmosConfig
	Ai       AIConfig
	Pipeline PipelineConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Environment      string
	LogFilePath      string
	AuditLogFilePath string
	NatsURL          string
	RedisURL         string
}

type CosmosConfig struct {
	Endpoint               string
	Key                    string
	Database               string
	GoldContainer          string
	ConversationsContainer string
	UsersContainer         string
	MaxRetries             int
}

// Containers maps the logical container names used by the pipeline and tools
// to the physical container IDs in the database.
func (c CosmosConfig) Containers() map[string]string {
	return map[string]string{
		"gold":          c.GoldContainer,
		"conversations": c.ConversationsContainer,
		"users":         c.UsersContainer,
	}
}

type AIConfig struct {
	LLMProvider     string // "ollama", "anthropic", "openai"
	LLMModel        string
	OllamaBaseURL   string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Temperature     float64
	MaxTokens       int
	RequestTimeout  time.Duration
}

type PipelineConfig struct {
	DefaultContainer       string
	MaxRecords             int
	MaxConversationHistory int
	ContextWindowSize      int
	LeaseTTL               time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Environment:      getEnv("GO_ENV", "development"),
			LogFilePath:      getEnv("LOG_FILE_PATH", "logs/app.log"),
			AuditLogFilePath: getEnv("AUDIT_LOG_FILE_PATH", "logs/audit.log"),
			NatsURL:          getEnv("NATS_URL", ""),
			RedisURL:         getEnv("REDIS_URL", ""),
		},
		Cosmos: CosmosConfig{
			Endpoint:               getEnv("COSMOS_ENDPOINT", ""),
			Key:                    getEnv("COSMOS_KEY", ""),
			Database:               getEnv("COSMOS_DATABASE_NAME", "data_analytics_chat"),
			GoldContainer:          getEnv("COSMOS_GOLD_CONTAINER", "gold"),
			ConversationsContainer: getEnv("COSMOS_CONVERSATIONS_CONTAINER", "conversations"),
			UsersContainer:         getEnv("COSMOS_USERS_CONTAINER", "users"),
			MaxRetries:             getEnvAsInt("COSMOS_MAX_RETRIES", 5),
		},
		Ai: AIConfig{
			LLMProvider:     getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:        getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:       getEnvAsInt("LLM_MAX_TOKENS", 2000),
			RequestTimeout:  getEnvAsDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			DefaultContainer:       getEnv("PIPELINE_DEFAULT_CONTAINER", "gold"),
			MaxRecords:             getEnvAsInt("PIPELINE_MAX_RECORDS", 100),
			MaxConversationHistory: getEnvAsInt("MAX_CONVERSATION_HISTORY", 10),
			ContextWindowSize:      getEnvAsInt("CONTEXT_WINDOW_SIZE", 4000),
			LeaseTTL:               getEnvAsDuration("CONVERSATION_LEASE_TTL", 2*time.Minute),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "analytics-chat-backend"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
