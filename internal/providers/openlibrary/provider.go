package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://openlibrary.org"
	defaultUserAgent = "booktrack-search/1.0"
	maxLimit         = 100
	maxBodyBytes     = 8 * 1024 * 1024

	// searchFields trims the /search.json payload to what normalization uses.
	searchFields = "key,title,subtitle,author_name,isbn,cover_i,first_publish_year,publisher,language,subject,number_of_pages_median"
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		client:    client,
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return domain.ProviderOpenLibrary
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Open Library",
		Kind:    "catalog",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, request domain.ProviderQuery) (domain.ProviderPage, error) {
	query, err := common.ValidateQuery(request.Query)
	if err != nil {
		return domain.ProviderPage{}, err
	}

	limit := request.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := request.Offset
	if offset < 0 {
		offset = 0
	}

	params := url.Values{}
	switch request.QueryType {
	case domain.QueryTypeISBN:
		params.Set("q", "isbn:"+query)
	case domain.QueryTypeTitle:
		params.Set("title", query)
	case domain.QueryTypeAuthor:
		params.Set("author", query)
	default:
		params.Set("q", query)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("fields", searchFields)
	if lang := strings.TrimSpace(request.Filters["language"]); lang != "" {
		params.Set("lang", lang)
	}

	started := time.Now()
	body, err := p.doGet(ctx, p.endpoint+"/search.json?"+params.Encode())
	latency := time.Since(started)
	common.ObserveCall(p.Name(), err, latency)
	if err != nil {
		return domain.ProviderPage{}, err
	}

	var payload struct {
		NumFound int               `json:"numFound"`
		Docs     []json.RawMessage `json:"docs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ProviderPage{}, fmt.Errorf("open_library: unexpected payload: %w", err)
	}

	return domain.ProviderPage{
		Results:    payload.Docs,
		TotalCount: payload.NumFound,
		Provider:   p.Name(),
		Query:      query,
		LatencyMS:  latency.Milliseconds(),
	}, nil
}

func (p *Provider) Normalize(raw json.RawMessage) domain.BookResult {
	return NormalizeDoc(raw)
}

// Hydrate fetches the work record behind a search doc. Work payloads carry a
// different shape than search docs, so they get their own normalizer.
func (p *Provider) Hydrate(ctx context.Context, providerID string) (domain.BookResult, error) {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return domain.BookResult{}, fmt.Errorf("open_library: empty work id: %w", domain.ErrNotFound)
	}

	started := time.Now()
	body, err := p.doGet(ctx, p.endpoint+"/works/"+url.PathEscape(id)+".json")
	common.ObserveCall(p.Name(), err, time.Since(started))
	if err != nil {
		return domain.BookResult{}, err
	}
	return NormalizeWork(body), nil
}

func (p *Provider) doGet(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, common.WrapTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, common.ClassifyStatus(p.Name(), resp.StatusCode, excerpt)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, common.WrapTransport(p.Name(), err)
	}
	return body, nil
}
