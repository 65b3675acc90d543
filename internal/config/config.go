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
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Research ResearchConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LogToConsole       bool // false keeps engine logs in the file only
	CorsAllowedOrigins string
	NatsURL            string // empty disables lifecycle events and task requests
	RedisURL           string // empty keeps run locks in process
}

type DatabaseConfig struct {
	Connection string // empty runs on the in-memory store
}

type APIKeys struct {
	GoogleGemini       string
	GoogleSearch       string
	GoogleSearchEngine string // Programmable Search Engine cx
	HuggingFace        string
	SearchEndpointKey  string
}

type AIConfig struct {
	LLMProvider   string // "ollama", "gemini" or "huggingface"
	LLMModel      string
	OllamaBaseURL string
}

type ResearchConfig struct {
	RunTopic          string
	Parallelism       int
	MaxConcurrentRuns int
	FetchTimeout      time.Duration
	FetchMaxChars     int
	SearchLimit       int
	FetchPerRound     int
	FetchConcurrency  int
	SearchRetries     int
	LLMAttempts       int
	PageCacheTTL      time.Duration
	UseBrowser        bool
	BrowserTimeout    time.Duration
	// SearchEndpoint is a JSON search API used instead of Google Custom Search.
	SearchEndpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LogToConsole:       getEnvAsBool("LOG_TO_CONSOLE", true),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini:       getEnv("GOOGLE_GEMINI_API_KEY", ""),
			GoogleSearch:       getEnv("GOOGLE_SEARCH_API_KEY", ""),
			GoogleSearchEngine: getEnv("GOOGLE_SEARCH_ENGINE_ID", ""),
			HuggingFace:        getEnv("HUGGINGFACE_API_KEY", ""),
			SearchEndpointKey:  getEnv("RESEARCH_SEARCH_ENDPOINT_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Research: ResearchConfig{
			RunTopic:          getEnv("RESEARCH_RUN_TOPIC_NAME", "RESEARCH_RUN_REQUESTED"),
			Parallelism:       getEnvAsInt("RESEARCH_PARALLELISM", 3),
			MaxConcurrentRuns: getEnvAsInt("RESEARCH_MAX_CONCURRENT_RUNS", 4),
			FetchTimeout:      getEnvAsDuration("RESEARCH_FETCH_TIMEOUT", 12*time.Second),
			FetchMaxChars:     getEnvAsInt("RESEARCH_FETCH_MAX_CHARS", 12000),
			SearchLimit:       getEnvAsInt("RESEARCH_SEARCH_LIMIT", 6),
			FetchPerRound:     getEnvAsInt("RESEARCH_FETCH_PER_ROUND", 4),
			FetchConcurrency:  getEnvAsInt("RESEARCH_FETCH_CONCURRENCY", 3),
			SearchRetries:     getEnvAsInt("RESEARCH_SEARCH_RETRIES", 2),
			LLMAttempts:       getEnvAsInt("RESEARCH_LLM_ATTEMPTS", 2),
			PageCacheTTL:      getEnvAsDuration("RESEARCH_PAGE_CACHE_TTL", 30*time.Minute),
			UseBrowser:        getEnvAsBool("RESEARCH_USE_BROWSER", false),
			BrowserTimeout:    getEnvAsDuration("RESEARCH_BROWSER_TIMEOUT", 20*time.Second),
			SearchEndpoint:    getEnv("RESEARCH_SEARCH_ENDPOINT", ""),
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
