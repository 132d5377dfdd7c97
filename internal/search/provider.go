package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"booktrack/searchservice/internal/breaker"
	"booktrack/searchservice/internal/cache"
	"booktrack/searchservice/internal/domain"
)

// Provider is one upstream book catalog. Search returns the raw page;
// Normalize is pure and never fails, falling back to placeholder fields.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, request domain.ProviderQuery) (domain.ProviderPage, error)
	Normalize(raw json.RawMessage) domain.BookResult
	Hydrate(ctx context.Context, providerID string) (domain.BookResult, error)
}

// Service orchestrates validation, cache lookup, breaker-guarded provider
// calls and normalization for every search entry point.
type Service struct {
	providers  map[string]Provider
	names      []string // canonical names, sorted, no aliases
	breakers   map[string]*breaker.Breaker
	cache      *cache.Manager
	timeout    time.Duration
	breakerCfg breaker.Config
	noCache    bool
	sweepEvery time.Duration
	sweepRun   atomic.Bool
	logger     *slog.Logger
}

type ServiceOption func(*Service)

func WithCache(manager *cache.Manager) ServiceOption {
	return func(s *Service) { s.cache = manager }
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) { s.noCache = disabled }
}

func WithBreakerConfig(cfg breaker.Config) ServiceOption {
	return func(s *Service) { s.breakerCfg = cfg }
}

func WithSweepInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.sweepEvery = interval
		}
	}
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(providers []Provider, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	svc := &Service{
		providers:  make(map[string]Provider, len(providers)),
		breakers:   make(map[string]*breaker.Breaker, len(providers)),
		timeout:    timeout,
		sweepEvery: time.Hour,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}

	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		if _, exists := svc.providers[name]; exists {
			continue
		}
		svc.providers[name] = provider
		svc.names = append(svc.names, name)
		svc.breakers[name] = breaker.New(name, svc.breakerCfg,
			breaker.WithObserver(svc.observeBreaker))
		for _, alias := range providerAliases(name) {
			if _, exists := svc.providers[alias]; !exists {
				svc.providers[alias] = provider
			}
		}
	}
	sort.Strings(svc.names)
	return svc
}

func providerAliases(name string) []string {
	switch name {
	case domain.ProviderGoogleBooks:
		return []string{"google", "googlebooks"}
	case domain.ProviderOpenLibrary:
		return []string{"openlibrary", "ol"}
	default:
		return nil
	}
}

// resolveProvider maps a request's provider field, empty included, to one
// registered provider. The first registered catalog is the default.
func (s *Service) resolveProvider(raw string) (Provider, error) {
	if len(s.names) == 0 {
		return nil, domain.ErrNoProviders
	}
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return s.providers[s.names[0]], nil
	}
	provider, ok := s.providers[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return provider, nil
}

// NormalizeRaw maps one raw provider payload to the canonical book shape.
// The provider name is the only thing that can fail; normalization itself
// tolerates missing fields.
func (s *Service) NormalizeRaw(providerName string, raw json.RawMessage) (domain.BookResult, error) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	provider, ok := s.providers[name]
	if !ok {
		return domain.BookResult{}, domain.ErrUnknownProvider
	}
	return provider.Normalize(raw), nil
}

// Providers lists the registered catalogs, aliases folded away.
func (s *Service) Providers() []domain.ProviderInfo {
	items := make([]domain.ProviderInfo, 0, len(s.names))
	for _, name := range s.names {
		info := s.providers[name].Info()
		if info.Name == "" {
			info.Name = name
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	return items
}

// ProviderDiagnostics reports each provider's breaker state and rolling
// outcome counters for the operational endpoints.
func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	items := make([]domain.ProviderDiagnostics, 0, len(s.names))
	for _, name := range s.names {
		info := s.providers[name].Info()
		brk := s.breakers[name]
		counts := brk.Counts()
		diag := domain.ProviderDiagnostics{
			Name:         name,
			Label:        info.Label,
			Kind:         info.Kind,
			Enabled:      info.Enabled,
			BreakerState: brk.State().String(),
			Successes:    counts.Successes,
			Failures:     counts.Failures,
			Timeouts:     counts.Timeouts,
			Rejects:      counts.Rejects,
			LastError:    brk.LastError(),
		}
		if openedAt := brk.OpenedAt(); !openedAt.IsZero() {
			diag.OpenedAt = openedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, diag)
	}
	return items
}

// StartBackground launches the periodic durable-tier sweep. Safe to call
// more than once; only the first call starts the loop.
func (s *Service) StartBackground(ctx context.Context) {
	if s.cache == nil || s.noCache {
		return
	}
	if s.sweepRun.CompareAndSwap(false, true) {
		go s.runSweeper(ctx)
	}
}

func (s *Service) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.cache.CleanExpired(ctx)
			if err != nil {
				s.logger.Warn("cache sweep failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				s.logger.Info("cache sweep completed", slog.Int("removed", removed))
			}
		}
	}
}

func (s *Service) observeBreaker(event breaker.Event) {
	switch event.Type {
	case "open":
		s.logger.Warn("circuit breaker opened",
			slog.String("provider", event.Provider),
			slog.String("error", errString(event.Err)))
	case "half_open":
		s.logger.Info("circuit breaker half-open, probing",
			slog.String("provider", event.Provider))
	case "closed":
		s.logger.Info("circuit breaker closed",
			slog.String("provider", event.Provider))
	case "reject":
		s.logger.Debug("circuit breaker rejected call",
			slog.String("provider", event.Provider))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
