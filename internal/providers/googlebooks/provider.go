package googlebooks

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
	defaultEndpoint  = "https://www.googleapis.com/books/v1"
	defaultUserAgent = "booktrack-search/1.0"
	maxResults       = 40 // upstream hard cap per page
	maxBodyBytes     = 8 * 1024 * 1024
)

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
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
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return domain.ProviderGoogleBooks
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Google Books",
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
	if limit > maxResults {
		limit = maxResults
	}
	offset := request.Offset
	if offset < 0 {
		offset = 0
	}

	params := url.Values{}
	params.Set("q", searchTerm(query, request.QueryType))
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("startIndex", strconv.Itoa(offset))
	if p.apiKey != "" {
		params.Set("key", p.apiKey)
	}
	if lang := strings.TrimSpace(request.Filters["language"]); lang != "" {
		params.Set("langRestrict", lang)
	}
	if printType := strings.TrimSpace(request.Filters["printType"]); printType != "" {
		params.Set("printType", printType)
	}
	if orderBy := strings.TrimSpace(request.Filters["orderBy"]); orderBy != "" {
		params.Set("orderBy", orderBy)
	}

	started := time.Now()
	body, err := p.doGet(ctx, p.endpoint+"/volumes?"+params.Encode())
	latency := time.Since(started)
	common.ObserveCall(p.Name(), err, latency)
	if err != nil {
		return domain.ProviderPage{}, err
	}

	var payload struct {
		TotalItems int               `json:"totalItems"`
		Items      []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ProviderPage{}, fmt.Errorf("google_books: unexpected payload: %w", err)
	}

	return domain.ProviderPage{
		Results:    payload.Items,
		TotalCount: payload.TotalItems,
		Provider:   p.Name(),
		Query:      query,
		LatencyMS:  latency.Milliseconds(),
	}, nil
}

func (p *Provider) Normalize(raw json.RawMessage) domain.BookResult {
	return NormalizeVolume(raw)
}

func (p *Provider) Hydrate(ctx context.Context, providerID string) (domain.BookResult, error) {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return domain.BookResult{}, fmt.Errorf("google_books: empty volume id: %w", domain.ErrNotFound)
	}

	target := p.endpoint + "/volumes/" + url.PathEscape(id)
	if p.apiKey != "" {
		target += "?key=" + url.QueryEscape(p.apiKey)
	}

	started := time.Now()
	body, err := p.doGet(ctx, target)
	common.ObserveCall(p.Name(), err, time.Since(started))
	if err != nil {
		return domain.BookResult{}, err
	}
	return NormalizeVolume(body), nil
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

// searchTerm applies the Google Books fielded-search prefixes.
func searchTerm(query string, queryType domain.QueryType) string {
	switch queryType {
	case domain.QueryTypeISBN:
		return "isbn:" + query
	case domain.QueryTypeTitle:
		return "intitle:" + query
	case domain.QueryTypeAuthor:
		return "inauthor:" + query
	default:
		return query
	}
}
