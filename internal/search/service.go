package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/semaphore"

	"booktrack/searchservice/internal/breaker"
	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/metrics"
	"booktrack/searchservice/internal/providers/common"
)

// maxConcurrentProviders caps the fan-out so an aggregate search cannot
// dogpile every upstream at once.
const maxConcurrentProviders = 4

const staleNote = "provider unavailable, serving stale cached results"

type preparedSearch struct {
	query     string
	queryType domain.QueryType
	limit     int
	offset    int
	filters   map[string]string
	noCache   bool
}

func (p preparedSearch) providerQuery() domain.ProviderQuery {
	return domain.ProviderQuery{
		Query:     p.query,
		Limit:     p.limit,
		Offset:    p.offset,
		QueryType: p.queryType,
		Filters:   p.filters,
	}
}

func (s *Service) prepare(request domain.SearchRequest) (preparedSearch, error) {
	query, err := common.ValidateQuery(request.Query)
	if err != nil {
		return preparedSearch{}, err
	}
	if request.Offset < 0 {
		return preparedSearch{}, domain.ErrInvalidOffset
	}

	limit := request.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return preparedSearch{
		query:     query,
		queryType: domain.NormalizeQueryType(string(request.QueryType)),
		limit:     limit,
		offset:    request.Offset,
		filters:   request.Filters,
		noCache:   request.NoCache,
	}, nil
}

// Search runs one provider search through the full pipeline: validation,
// two-tier cache with stampede protection, breaker-guarded upstream call and
// normalization. When the provider is down it degrades to stale cached
// results if the durable tier still holds any.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	startedAt := time.Now()

	prepared, err := s.prepare(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	provider, err := s.resolveProvider(request.Provider)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	providerName := provider.Name()

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	totalCount := 0
	fetch := func(fetchCtx context.Context) ([]domain.BookResult, error) {
		page, err := s.breakers[providerName].Execute(fetchCtx, func(callCtx context.Context) (domain.ProviderPage, error) {
			return provider.Search(callCtx, prepared.providerQuery())
		})
		if err != nil {
			return nil, err
		}
		results := make([]domain.BookResult, 0, len(page.Results))
		for _, raw := range page.Results {
			results = append(results, provider.Normalize(raw))
		}
		totalCount = page.TotalCount
		return results, nil
	}

	var (
		results   []domain.BookResult
		fromCache bool
	)
	if s.noCache || prepared.noCache || s.cache == nil {
		results, err = fetch(runCtx)
	} else {
		results, fromCache, err = s.cache.GetWithLock(runCtx, prepared.query, providerName, prepared.filters, fetch)
	}

	if err != nil {
		if stale, ok := s.staleResults(runCtx, prepared, providerName); ok {
			s.logger.Warn("search degraded to stale results",
				slog.String("provider", providerName),
				slog.String("query", prepared.query),
				slog.String("error", err.Error()))
			metrics.SearchRequestsTotal.WithLabelValues(providerName, "stale").Inc()
			return domain.SearchResponse{
				Query:      prepared.query,
				Provider:   providerName,
				Results:    stale,
				TotalCount: len(stale),
				FromCache:  true,
				Stale:      true,
				Note:       staleNote,
				LatencyMS:  time.Since(startedAt).Milliseconds(),
			}, nil
		}
		metrics.SearchRequestsTotal.WithLabelValues(providerName, "error").Inc()
		if errors.Is(err, breaker.ErrOpen) {
			return domain.SearchResponse{}, fmt.Errorf("%s: %w", providerName, domain.ErrServiceUnavailable)
		}
		return domain.SearchResponse{}, fmt.Errorf("search failed: %w", err)
	}

	source := "live"
	if fromCache {
		source = "cache"
		totalCount = len(results)
	}
	metrics.SearchRequestsTotal.WithLabelValues(providerName, source).Inc()
	if totalCount < len(results) {
		totalCount = len(results)
	}

	return domain.SearchResponse{
		Query:      prepared.query,
		Provider:   providerName,
		Results:    results,
		TotalCount: totalCount,
		FromCache:  fromCache,
		LatencyMS:  time.Since(startedAt).Milliseconds(),
	}, nil
}

func (s *Service) staleResults(ctx context.Context, prepared preparedSearch, provider string) ([]domain.BookResult, bool) {
	if s.cache == nil || s.noCache || prepared.noCache {
		return nil, false
	}
	return s.cache.GetStale(ctx, prepared.query, provider, prepared.filters)
}

// SearchAll fans one query out to every registered provider, merges the
// results and dedupes them by ISBN-13. A provider failing, open breaker
// included, degrades that provider's slice of the response, never the whole
// call.
func (s *Service) SearchAll(ctx context.Context, request domain.SearchRequest) (domain.AggregateResponse, error) {
	startedAt := time.Now()

	prepared, err := s.prepare(request)
	if err != nil {
		return domain.AggregateResponse{}, err
	}
	if len(s.names) == 0 {
		return domain.AggregateResponse{}, domain.ErrNoProviders
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	statuses := make([]domain.ProviderStatus, len(s.names))
	pages := make([][]domain.BookResult, len(s.names))

	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup
	for i, name := range s.names {
		wg.Add(1)
		go func(index int, providerName string) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				statuses[index] = domain.ProviderStatus{Name: providerName, Error: "context cancelled"}
				return
			}
			defer sem.Release(1)

			perProvider := request
			perProvider.Provider = providerName
			response, err := s.Search(runCtx, perProvider)
			if err != nil {
				statuses[index] = domain.ProviderStatus{Name: providerName, Error: err.Error()}
				return
			}
			statuses[index] = domain.ProviderStatus{Name: providerName, OK: true, Count: len(response.Results)}
			pages[index] = response.Results
		}(i, name)
	}
	wg.Wait()

	merged := mergeResults(pages, prepared.limit)

	return domain.AggregateResponse{
		Query:      prepared.query,
		Results:    merged,
		TotalCount: len(merged),
		Providers:  statuses,
		LatencyMS:  time.Since(startedAt).Milliseconds(),
	}, nil
}

// mergeResults flattens per-provider pages, dropping duplicates by ISBN-13.
// On a duplicate the entry with a cover image wins; ties keep the first seen.
func mergeResults(pages [][]domain.BookResult, limit int) []domain.BookResult {
	byKey := make(map[string]int)
	merged := make([]domain.BookResult, 0, limit)
	for _, page := range pages {
		for _, item := range page {
			key := dedupeKey(item)
			if index, exists := byKey[key]; exists {
				if merged[index].CoverImageURL == "" && item.CoverImageURL != "" {
					merged[index] = item
				}
				continue
			}
			byKey[key] = len(merged)
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return strings.ToLower(merged[i].Title) < strings.ToLower(merged[j].Title)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func dedupeKey(item domain.BookResult) string {
	if item.ISBN13 != "" {
		return "isbn:" + item.ISBN13
	}
	return item.Provider + ":" + item.ProviderID
}

// Hydrate fetches the full record for one previously returned result.
// Detail lookups are cheap single-record reads, so they bypass the search
// cache and go straight to the provider.
func (s *Service) Hydrate(ctx context.Context, providerName, providerID string) (domain.BookResult, error) {
	provider, err := s.resolveProvider(providerName)
	if err != nil {
		return domain.BookResult{}, err
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := provider.Hydrate(runCtx, providerID)
	if err != nil {
		return domain.BookResult{}, fmt.Errorf("hydrate failed: %w", err)
	}
	return result, nil
}

// Invalidate drops the cached entry for one (query, provider, filters) tuple
// from both tiers.
func (s *Service) Invalidate(ctx context.Context, request domain.SearchRequest) error {
	prepared, err := s.prepare(request)
	if err != nil {
		return err
	}
	provider, err := s.resolveProvider(request.Provider)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, prepared.query, provider.Name(), prepared.filters)
	}
	return nil
}
