package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr       string
	AllowedOrigins []string

	// Model API Configuration
	ModelAPIBase string
	ModelAPIKey  string
	ModelName    string
	ModelTimeout time.Duration

	// Retrieval Configuration
	NatsURL       string
	SearchSubject string
	SearchTopK    int
	SearchTimeout time.Duration
	MetricsTopic  string

	// Rate Limit Configuration
	TokensPerMinute int
	BurstLimit      int
	RetryAfter      time.Duration
	BucketIdleSweep time.Duration

	// Cache Configuration
	CacheMaxEntries int
	CacheDefaultTTL time.Duration

	// Session Configuration
	SessionTTL     time.Duration
	SessionSliding bool

	// History Configuration
	HistoryFlushSize     int
	HistoryFlushInterval time.Duration
	HistoryMaxRecords    int

	// Worker Pool Configuration
	WorkerSlots int64

	// Database Configuration
	DBPath string
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	} else {
		_ = godotenv.Load()
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AllowedOrigins: splitOrigins(getEnv("ALLOWED_ORIGINS", "*")),

		ModelAPIBase: getEnv("MODEL_API_BASE", "https://api.siliconflow.cn/v1"),
		ModelAPIKey:  getEnv("MODEL_API_KEY", ""),
		ModelName:    getEnv("MODEL_NAME", "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B"),
		ModelTimeout: getEnvDuration("MODEL_TIMEOUT", "100s"),

		NatsURL:       getEnv("NATS_URL", ""),
		SearchSubject: getEnv("SEARCH_SUBJECT", "search.request.campus"),
		SearchTopK:    getEnvInt("SEARCH_TOP_K", 5),
		SearchTimeout: getEnvDuration("SEARCH_TIMEOUT", "5s"),
		MetricsTopic:  getEnv("METRICS_TOPIC", "qa.metrics"),

		TokensPerMinute: getEnvInt("RATE_TOKENS_PER_MINUTE", 1000),
		BurstLimit:      getEnvInt("RATE_BURST_LIMIT", 100),
		RetryAfter:      getEnvDuration("RATE_RETRY_AFTER", "10s"),
		BucketIdleSweep: getEnvDuration("RATE_IDLE_SWEEP", "5m"),

		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 5000),
		CacheDefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", "1h"),

		SessionTTL:     getEnvDuration("SESSION_TTL", "24h"),
		SessionSliding: getEnvBool("SESSION_SLIDING", false),

		HistoryFlushSize:     getEnvInt("HISTORY_FLUSH_SIZE", 100),
		HistoryFlushInterval: getEnvDuration("HISTORY_FLUSH_INTERVAL", "5s"),
		HistoryMaxRecords:    getEnvInt("HISTORY_MAX_RECORDS", 100000),

		WorkerSlots: int64(getEnvInt("WORKER_SLOTS", 16)),

		DBPath: getEnv("DB_PATH", "data/qa.sqlite"),
	}, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "*" {
			return []string{"*"}
		}
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	// MODEL_TIMEOUT is documented as plain seconds in older deployments.
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}
