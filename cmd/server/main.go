package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "booktrack/searchservice/internal/api/http"
	"booktrack/searchservice/internal/app"
	"booktrack/searchservice/internal/breaker"
	"booktrack/searchservice/internal/cache"
	"booktrack/searchservice/internal/metrics"
	"booktrack/searchservice/internal/providers/googlebooks"
	"booktrack/searchservice/internal/providers/openlibrary"
	"booktrack/searchservice/internal/search"
	"booktrack/searchservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "book-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "book-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("googleBooksEndpoint", cfg.GoogleBooksEndpoint),
		slog.Bool("hasGoogleBooksKey", cfg.GoogleBooksAPIKey != ""),
		slog.String("openLibraryEndpoint", cfg.OpenLibraryEndpoint),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasDatabase", strings.TrimSpace(cfg.DatabaseURL) != ""),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
		slog.Duration("fastCacheTTL", cfg.FastCacheTTL),
		slog.Duration("durableCacheTTL", cfg.DurableCacheTTL),
	)

	googleClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	openLibraryClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	providers := []search.Provider{
		googlebooks.NewProvider(googlebooks.Config{
			Endpoint:  cfg.GoogleBooksEndpoint,
			APIKey:    cfg.GoogleBooksAPIKey,
			UserAgent: cfg.UserAgent,
			Client:    googleClient,
		}),
		openlibrary.NewProvider(openlibrary.Config{
			Endpoint:  cfg.OpenLibraryEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    openLibraryClient,
		}),
	}

	searchService := search.NewService(providers, cfg.RequestTimeout, buildServiceOptions(cfg, logger)...)

	handler := apihttp.NewServer(searchService, apihttp.WithLogger(logger)).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("book search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("book search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithServiceLogger(logger),
		search.WithSweepInterval(cfg.SweepInterval),
		search.WithBreakerConfig(breaker.Config{
			Timeout:          cfg.BreakerTimeout,
			ResetTimeout:     cfg.BreakerResetTimeout,
			Window:           cfg.BreakerWindow,
			FailureThreshold: cfg.BreakerFailureThreshold,
			MinSamples:       cfg.BreakerMinSamples,
		}),
	}

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}

	fast := buildFastStore(cfg, logger)
	durable := buildDurableStore(cfg, logger)
	if fast == nil && durable == nil {
		logger.Warn("no cache backend configured, every search hits the providers")
		return opts
	}

	manager := cache.NewManager(fast, durable,
		cache.WithFastTTL(cfg.FastCacheTTL),
		cache.WithDurableTTL(cfg.DurableCacheTTL),
		cache.WithLogger(logger),
	)
	opts = append(opts, search.WithCache(manager))
	return opts
}

// buildFastStore connects the Redis tier; a missing or unreachable Redis
// degrades the service to durable-tier-only caching, it never blocks startup.
func buildFastStore(cfg app.Config, logger *slog.Logger) cache.FastStore {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, fast cache tier disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, fast cache tier disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return cache.NewRedisStore(client)
}

// buildDurableStore connects the Postgres tier and ensures its schema.
func buildDurableStore(cfg app.Config, logger *slog.Logger) cache.DurableStore {
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("invalid database url, durable cache tier disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not reachable, durable cache tier disabled", slog.String("error", err.Error()))
		pool.Close()
		return nil
	}

	store := cache.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Warn("cache schema migration failed, durable cache tier disabled", slog.String("error", err.Error()))
		pool.Close()
		return nil
	}
	logger.Info("postgres connected")
	return store
}
