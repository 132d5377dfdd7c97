package googlebooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"booktrack/searchservice/internal/domain"
)

const sampleVolume = `{
	"id": "zyTCAlFPjgYC",
	"volumeInfo": {
		"title": "The Google Story",
		"subtitle": "Inside the Hottest Business",
		"authors": ["David A. Vise", "Mark Malseed"],
		"publisher": "Random House Digital",
		"publishedDate": "2005-11-15",
		"description": "The story of Google.",
		"industryIdentifiers": [
			{"type": "ISBN_10", "identifier": "055380457X"},
			{"type": "ISBN_13", "identifier": "978-0-553-80457-7"}
		],
		"pageCount": 207,
		"printType": "BOOK",
		"categories": ["Business", "Technology", "Biography", "History", "Internet", "Computers"],
		"language": "en",
		"imageLinks": {
			"smallThumbnail": "http://books.google.com/small.jpg",
			"thumbnail": "http://books.google.com/thumb.jpg"
		}
	}
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	provider := NewProvider(Config{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Client:   server.Client(),
	})
	return provider, server
}

func TestSearchBuildsFieldedQuery(t *testing.T) {
	var gotQuery string
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if key := r.URL.Query().Get("key"); key != "test-key" {
			t.Errorf("missing api key, got %q", key)
		}
		_, _ = w.Write([]byte(`{"totalItems": 0, "items": []}`))
	})

	cases := []struct {
		queryType domain.QueryType
		want      string
	}{
		{domain.QueryTypeGeneral, "dune"},
		{domain.QueryTypeISBN, "isbn:dune"},
		{domain.QueryTypeTitle, "intitle:dune"},
		{domain.QueryTypeAuthor, "inauthor:dune"},
	}
	for _, tc := range cases {
		_, err := provider.Search(context.Background(), domain.ProviderQuery{
			Query:     "dune",
			QueryType: tc.queryType,
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.queryType, err)
		}
		if gotQuery != tc.want {
			t.Fatalf("%s: expected q=%q, got %q", tc.queryType, tc.want, gotQuery)
		}
	}
}

func TestSearchCapsLimit(t *testing.T) {
	var gotMax string
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	})

	if _, err := provider.Search(context.Background(), domain.ProviderQuery{Query: "dune", Limit: 500}); err != nil {
		t.Fatal(err)
	}
	if gotMax != "40" {
		t.Fatalf("expected maxResults capped at 40, got %s", gotMax)
	}
}

func TestSearchParsesPage(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"totalItems": 212, "items": [` + sampleVolume + `]}`))
	})

	page, err := provider.Search(context.Background(), domain.ProviderQuery{Query: "google story"})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 212 {
		t.Fatalf("expected total 212, got %d", page.TotalCount)
	}
	if len(page.Results) != 1 {
		t.Fatalf("expected 1 raw result, got %d", len(page.Results))
	}
	if page.Provider != domain.ProviderGoogleBooks {
		t.Fatalf("unexpected provider %q", page.Provider)
	}
}

func TestSearchRejectsShortQuery(t *testing.T) {
	provider := NewProvider(Config{})
	_, err := provider.Search(context.Background(), domain.ProviderQuery{Query: "a"})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrUpstreamServer},
		{http.StatusBadRequest, domain.ErrUpstreamBadRequest},
	}
	for _, tc := range cases {
		provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := provider.Search(context.Background(), domain.ProviderQuery{Query: "dune"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("HTTP %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestHydrateFetchesVolume(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes/zyTCAlFPjgYC" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleVolume))
	})

	result, err := provider.Hydrate(context.Background(), "zyTCAlFPjgYC")
	if err != nil {
		t.Fatal(err)
	}
	if result.Title != "The Google Story" {
		t.Fatalf("unexpected title %q", result.Title)
	}

	_, err = provider.Hydrate(context.Background(), "missing-id")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing volume, got %v", err)
	}
}

func TestNormalizeVolumeFull(t *testing.T) {
	result := NormalizeVolume(json.RawMessage(sampleVolume))

	if result.Provider != domain.ProviderGoogleBooks {
		t.Fatalf("unexpected provider %q", result.Provider)
	}
	if result.ProviderID != "zyTCAlFPjgYC" {
		t.Fatalf("unexpected id %q", result.ProviderID)
	}
	if result.Title != "The Google Story" {
		t.Fatalf("unexpected title %q", result.Title)
	}
	if result.Author != "David A. Vise, Mark Malseed" {
		t.Fatalf("unexpected author %q", result.Author)
	}
	if result.ISBN10 != "055380457X" {
		t.Fatalf("unexpected isbn10 %q", result.ISBN10)
	}
	if result.ISBN13 != "9780553804577" {
		t.Fatalf("separators should be stripped, got %q", result.ISBN13)
	}
	if result.PageCount != 207 {
		t.Fatalf("unexpected page count %d", result.PageCount)
	}
	if result.Format != "book" {
		t.Fatalf("print type should be lowercased, got %q", result.Format)
	}
	if len(result.Categories) != 5 {
		t.Fatalf("categories should be capped at 5, got %d", len(result.Categories))
	}
	if result.CoverImageURL != "https://books.google.com/thumb.jpg" {
		t.Fatalf("expected https thumbnail, got %q", result.CoverImageURL)
	}
	if len(result.Raw) == 0 {
		t.Fatal("raw payload should be preserved")
	}
}

func TestNormalizeVolumePrefersLargerCover(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "x",
		"volumeInfo": {
			"title": "T",
			"imageLinks": {
				"thumbnail": "http://books.google.com/thumb.jpg",
				"large": "http://books.google.com/large.jpg"
			}
		}
	}`)
	result := NormalizeVolume(raw)
	if result.CoverImageURL != "https://books.google.com/large.jpg" {
		t.Fatalf("expected large cover, got %q", result.CoverImageURL)
	}
}

func TestNormalizeVolumeMissingFields(t *testing.T) {
	result := NormalizeVolume(json.RawMessage(`{"id": "empty-vol", "volumeInfo": {}}`))

	if result.Title != domain.UnknownTitle {
		t.Fatalf("expected placeholder title, got %q", result.Title)
	}
	if result.Author != domain.UnknownAuthor {
		t.Fatalf("expected placeholder author, got %q", result.Author)
	}
	if result.CoverImageURL != "" || result.ISBN13 != "" || result.PageCount != 0 {
		t.Fatalf("optional fields should stay zero: %+v", result)
	}
}

func TestNormalizeVolumeMalformedPayload(t *testing.T) {
	result := NormalizeVolume(json.RawMessage(`not json`))
	if result.Title != domain.UnknownTitle || result.Author != domain.UnknownAuthor {
		t.Fatalf("malformed payload should yield placeholders, got %+v", result)
	}
}

func TestNormalizeVolumeExpandsYearOnlyDate(t *testing.T) {
	raw := json.RawMessage(`{"id": "y", "volumeInfo": {"title": "T", "publishedDate": "1965"}}`)
	result := NormalizeVolume(raw)
	if result.PublishedDate != "1965-01-01" {
		t.Fatalf("expected expanded date, got %q", result.PublishedDate)
	}
}
