package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string

	GoogleBooksEndpoint string
	GoogleBooksAPIKey   string
	OpenLibraryEndpoint string

	RedisURL    string
	DatabaseURL string

	FastCacheTTL    time.Duration
	DurableCacheTTL time.Duration
	CacheDisabled   bool
	SweepInterval   time.Duration

	BreakerTimeout          time.Duration
	BreakerResetTimeout     time.Duration
	BreakerWindow           time.Duration
	BreakerFailureThreshold float64
	BreakerMinSamples       int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8085"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("SEARCH_USER_AGENT", "booktrack-search/1.0"),

		GoogleBooksEndpoint: getEnv("GOOGLE_BOOKS_ENDPOINT", "https://www.googleapis.com/books/v1"),
		GoogleBooksAPIKey:   strings.TrimSpace(os.Getenv("GOOGLE_BOOKS_API_KEY")),
		OpenLibraryEndpoint: getEnv("OPEN_LIBRARY_ENDPOINT", "https://openlibrary.org"),

		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		FastCacheTTL:    time.Duration(getEnvInt("FAST_CACHE_TTL_HOURS", 6)) * time.Hour,
		DurableCacheTTL: time.Duration(getEnvInt("DURABLE_CACHE_TTL_DAYS", 21)) * 24 * time.Hour,
		CacheDisabled:   getEnvBool("SEARCH_CACHE_DISABLED", false),
		SweepInterval:   time.Duration(getEnvInt("CACHE_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,

		BreakerTimeout:          time.Duration(getEnvInt("BREAKER_TIMEOUT_SECONDS", 8)) * time.Second,
		BreakerResetTimeout:     time.Duration(getEnvInt("BREAKER_RESET_SECONDS", 30)) * time.Second,
		BreakerWindow:           time.Duration(getEnvInt("BREAKER_WINDOW_SECONDS", 60)) * time.Second,
		BreakerFailureThreshold: getEnvFloat("BREAKER_FAILURE_THRESHOLD", 0.5),
		BreakerMinSamples:       getEnvInt("BREAKER_MIN_SAMPLES", 5),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
