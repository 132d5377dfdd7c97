package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != ":8085" {
		t.Fatalf("unexpected default addr %q", cfg.HTTPAddr)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.RequestTimeout)
	}
	if cfg.FastCacheTTL != 6*time.Hour {
		t.Fatalf("unexpected fast cache ttl %v", cfg.FastCacheTTL)
	}
	if cfg.DurableCacheTTL != 21*24*time.Hour {
		t.Fatalf("unexpected durable cache ttl %v", cfg.DurableCacheTTL)
	}
	if cfg.BreakerFailureThreshold != 0.5 {
		t.Fatalf("unexpected failure threshold %v", cfg.BreakerFailureThreshold)
	}
	if cfg.BreakerMinSamples != 5 {
		t.Fatalf("unexpected min samples %d", cfg.BreakerMinSamples)
	}
	if cfg.CacheDisabled {
		t.Fatal("cache should be enabled by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "25")
	t.Setenv("GOOGLE_BOOKS_API_KEY", "  secret  ")
	t.Setenv("SEARCH_CACHE_DISABLED", "true")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "0.75")
	t.Setenv("FAST_CACHE_TTL_HOURS", "2")

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("addr override not applied: %q", cfg.HTTPAddr)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Fatalf("timeout override not applied: %v", cfg.RequestTimeout)
	}
	if cfg.GoogleBooksAPIKey != "secret" {
		t.Fatalf("api key should be trimmed, got %q", cfg.GoogleBooksAPIKey)
	}
	if !cfg.CacheDisabled {
		t.Fatal("cache disable override not applied")
	}
	if cfg.BreakerFailureThreshold != 0.75 {
		t.Fatalf("threshold override not applied: %v", cfg.BreakerFailureThreshold)
	}
	if cfg.FastCacheTTL != 2*time.Hour {
		t.Fatalf("fast ttl override not applied: %v", cfg.FastCacheTTL)
	}
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "2.5")
	t.Setenv("SEARCH_CACHE_DISABLED", "maybe")

	cfg := LoadConfig()

	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("invalid timeout should fall back to default, got %v", cfg.RequestTimeout)
	}
	if cfg.BreakerFailureThreshold != 0.5 {
		t.Fatalf("out-of-range threshold should fall back, got %v", cfg.BreakerFailureThreshold)
	}
	if cfg.CacheDisabled {
		t.Fatal("unparseable bool should fall back to default")
	}
}
