package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"booktrack/searchservice/internal/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	SearchAll(ctx context.Context, request domain.SearchRequest) (domain.AggregateResponse, error)
	Hydrate(ctx context.Context, provider, providerID string) (domain.BookResult, error)
	Invalidate(ctx context.Context, request domain.SearchRequest) error
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	search SearchService
	logger *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/all", s.handleSearchAll)
	mux.HandleFunc("/search/cache", s.handleInvalidate)
	mux.HandleFunc("/search/cover", s.handleCoverProxy)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/books/", s.handleBook)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "book-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request, ok := s.parseSearchRequest(w, r)
	if !ok {
		return
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.writeSearchError(w, request, err)
		return
	}

	s.logger.Info("search completed",
		slog.String("query", truncate(request.Query, 80)),
		slog.String("provider", response.Provider),
		slog.Int("results", len(response.Results)),
		slog.Bool("fromCache", response.FromCache),
		slog.Bool("stale", response.Stale),
		slog.Int64("latencyMs", response.LatencyMS),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/all" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request, ok := s.parseSearchRequest(w, r)
	if !ok {
		return
	}
	request.Provider = ""

	response, err := s.search.SearchAll(r.Context(), request)
	if err != nil {
		s.writeSearchError(w, request, err)
		return
	}

	failed := 0
	for _, status := range response.Providers {
		if !status.OK {
			failed++
		}
	}
	s.logger.Info("aggregate search completed",
		slog.String("query", truncate(request.Query, 80)),
		slog.Int("results", len(response.Results)),
		slog.Int("providers", len(response.Providers)),
		slog.Int("failed", failed),
		slog.Int64("latencyMs", response.LatencyMS),
	)
	writeJSON(w, http.StatusOK, response)
}

// handleBook serves GET /books/{provider}/{id}: the detail hydration lookup.
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/books/")
	provider, id, found := strings.Cut(rest, "/")
	if !found || strings.TrimSpace(provider) == "" || strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected /books/{provider}/{id}")
		return
	}

	result, err := s.search.Hydrate(r.Context(), provider, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "book not found")
		case errors.Is(err, domain.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, "upstream_timeout", "provider timed out")
		default:
			s.logger.Warn("hydrate failed",
				slog.String("provider", provider),
				slog.String("id", truncate(id, 80)),
				slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch book details")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleInvalidate serves DELETE /search/cache, dropping one cached entry.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/cache" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request, ok := s.parseSearchRequest(w, r)
	if !ok {
		return
	}
	if err := s.search.Invalidate(r.Context(), request); err != nil {
		s.writeSearchError(w, request, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": true})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) parseSearchRequest(w http.ResponseWriter, r *http.Request) (domain.SearchRequest, bool) {
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return domain.SearchRequest{}, false
	}

	limit, err := parsePositiveInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return domain.SearchRequest{}, false
	}
	offset, err := parseNonNegativeInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid offset")
		return domain.SearchRequest{}, false
	}

	return domain.SearchRequest{
		Query:     query,
		Provider:  strings.ToLower(strings.TrimSpace(q.Get("provider"))),
		Limit:     limit,
		Offset:    offset,
		QueryType: domain.NormalizeQueryType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		Filters:   parseSearchFilters(r),
		NoCache:   parseOptionalBool(q.Get("nocache")) || parseOptionalBool(q.Get("noCache")),
	}, true
}

// parseSearchFilters keeps only the filter keys providers understand, so
// arbitrary query params cannot fragment the cache keyspace.
func parseSearchFilters(r *http.Request) map[string]string {
	q := r.URL.Query()
	filters := make(map[string]string)
	for _, key := range []string{"language", "printType", "orderBy"} {
		if value := strings.TrimSpace(q.Get(key)); value != "" {
			filters[key] = value
		}
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func (s *Server) writeSearchError(w http.ResponseWriter, request domain.SearchRequest, err error) {
	s.logger.Warn("search request failed",
		slog.String("query", truncate(request.Query, 80)),
		slog.String("provider", request.Provider),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidOffset):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "provider temporarily unavailable")
	case errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", "provider timed out")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusBadGateway, "upstream_error", "provider rate limited the request")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
