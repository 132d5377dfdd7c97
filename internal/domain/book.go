package domain

import "encoding/json"

const (
	ProviderGoogleBooks = "google_books"
	ProviderOpenLibrary = "open_library"
)

// Placeholders used when an upstream record carries no usable value.
const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"
)

type QueryType string

const (
	QueryTypeGeneral QueryType = "general"
	QueryTypeISBN    QueryType = "isbn"
	QueryTypeTitle   QueryType = "title"
	QueryTypeAuthor  QueryType = "author"
)

func NormalizeQueryType(raw string) QueryType {
	switch QueryType(raw) {
	case QueryTypeISBN:
		return QueryTypeISBN
	case QueryTypeTitle:
		return QueryTypeTitle
	case QueryTypeAuthor:
		return QueryTypeAuthor
	default:
		return QueryTypeGeneral
	}
}

// BookResult is the canonical shape every provider payload is normalized
// into before it is cached or returned to callers. Provider, ProviderID and
// Title are always set; everything else is best-effort and may be empty.
type BookResult struct {
	ProviderID    string          `json:"providerId"`
	Provider      string          `json:"provider"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle,omitempty"`
	Author        string          `json:"author"`
	ISBN10        string          `json:"isbn10,omitempty"`
	ISBN13        string          `json:"isbn13,omitempty"`
	Publisher     string          `json:"publisher,omitempty"`
	PublishedDate string          `json:"publishedDate,omitempty"`
	PageCount     int             `json:"pageCount,omitempty"`
	Description   string          `json:"description,omitempty"`
	Language      string          `json:"language,omitempty"`
	CoverImageURL string          `json:"coverImageUrl,omitempty"`
	Format        string          `json:"format,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

type SearchRequest struct {
	Query     string            `json:"query"`
	Provider  string            `json:"provider"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
	QueryType QueryType         `json:"queryType"`
	Filters   map[string]string `json:"filters,omitempty"`
	NoCache   bool              `json:"-"`
}

type SearchResponse struct {
	Query      string       `json:"query"`
	Provider   string       `json:"provider"`
	Results    []BookResult `json:"results"`
	TotalCount int          `json:"totalCount"`
	FromCache  bool         `json:"fromCache"`
	Stale      bool         `json:"stale,omitempty"`
	Note       string       `json:"note,omitempty"`
	LatencyMS  int64        `json:"latencyMs"`
}

// AggregateResponse is the fan-out shape returned by the multi-provider search.
type AggregateResponse struct {
	Query      string           `json:"query"`
	Results    []BookResult     `json:"results"`
	TotalCount int              `json:"totalCount"`
	Providers  []ProviderStatus `json:"providers"`
	LatencyMS  int64            `json:"latencyMs"`
}

// ProviderQuery is what the orchestrator hands to one provider.
type ProviderQuery struct {
	Query     string
	Limit     int
	Offset    int
	QueryType QueryType
	Filters   map[string]string
}

// ProviderPage carries one provider's raw, un-normalized search page.
type ProviderPage struct {
	Results    []json.RawMessage
	TotalCount int
	Provider   string
	Query      string
	LatencyMS  int64
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Kind          string `json:"kind"`
	Enabled       bool   `json:"enabled"`
	BreakerState  string `json:"breakerState"`
	Successes     int    `json:"successes"`
	Failures      int    `json:"failures"`
	Timeouts      int    `json:"timeouts"`
	Rejects       int    `json:"rejects"`
	LastError     string `json:"lastError,omitempty"`
	OpenedAt      string `json:"openedAt,omitempty"`
	LastLatencyMS int64  `json:"lastLatencyMs,omitempty"`
}
