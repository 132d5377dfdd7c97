package openlibrary

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/providers/common"
)

type searchDoc struct {
	Key                 string   `json:"key"`
	Title               string   `json:"title"`
	Subtitle            string   `json:"subtitle"`
	AuthorName          []string `json:"author_name"`
	ISBN                []string `json:"isbn"`
	CoverID             int      `json:"cover_i"`
	FirstPublishYear    int      `json:"first_publish_year"`
	Publisher           []string `json:"publisher"`
	Language            []string `json:"language"`
	Subject             []string `json:"subject"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
}

// NormalizeDoc maps one /search.json doc into the canonical shape.
func NormalizeDoc(raw json.RawMessage) domain.BookResult {
	result := domain.BookResult{
		Provider: domain.ProviderOpenLibrary,
		Title:    domain.UnknownTitle,
		Author:   domain.UnknownAuthor,
		Raw:      raw,
	}

	var doc searchDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return result
	}

	result.ProviderID = workID(doc.Key)
	if title := strings.TrimSpace(doc.Title); title != "" {
		result.Title = title
	}
	result.Subtitle = strings.TrimSpace(doc.Subtitle)
	if author := common.JoinNames(doc.AuthorName); author != "" {
		result.Author = author
	}
	result.ISBN10, result.ISBN13 = pickISBNs(doc.ISBN)
	if doc.CoverID > 0 {
		result.CoverImageURL = coverURL(doc.CoverID)
	}
	if doc.FirstPublishYear > 0 {
		result.PublishedDate = common.ExpandYearOnly(strconv.Itoa(doc.FirstPublishYear))
	}
	if len(doc.Publisher) > 0 {
		result.Publisher = strings.TrimSpace(doc.Publisher[0])
	}
	if len(doc.Language) > 0 {
		result.Language = strings.ToLower(strings.TrimSpace(doc.Language[0]))
	}
	result.Categories = common.CapList(doc.Subject, common.MaxCategories)
	if doc.NumberOfPagesMedian > 0 {
		result.PageCount = doc.NumberOfPagesMedian
	}
	return result
}

type work struct {
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle"`
	Description json.RawMessage `json:"description"`
	Covers      []int           `json:"covers"`
	Subjects    []string        `json:"subjects"`
}

// NormalizeWork maps a /works/{id}.json payload. Work records do not carry
// author names or ISBNs inline, so those stay at their placeholders.
func NormalizeWork(raw json.RawMessage) domain.BookResult {
	result := domain.BookResult{
		Provider: domain.ProviderOpenLibrary,
		Title:    domain.UnknownTitle,
		Author:   domain.UnknownAuthor,
		Raw:      raw,
	}

	var w work
	if err := json.Unmarshal(raw, &w); err != nil {
		return result
	}

	result.ProviderID = workID(w.Key)
	if title := strings.TrimSpace(w.Title); title != "" {
		result.Title = title
	}
	result.Subtitle = strings.TrimSpace(w.Subtitle)
	result.Description = workDescription(w.Description)
	for _, id := range w.Covers {
		if id > 0 {
			result.CoverImageURL = coverURL(id)
			break
		}
	}
	result.Categories = common.CapList(w.Subjects, common.MaxCategories)
	return result
}

func workID(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "/works/")
}

func coverURL(id int) string {
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", id)
}

// pickISBNs scans the flat isbn list and keeps the first value of each length.
func pickISBNs(raw []string) (isbn10, isbn13 string) {
	for _, candidate := range raw {
		digits := common.DigitsOnly(candidate)
		switch len(digits) {
		case 10:
			if isbn10 == "" {
				isbn10 = digits
			}
		case 13:
			if isbn13 == "" {
				isbn13 = digits
			}
		}
		if isbn10 != "" && isbn13 != "" {
			break
		}
	}
	return isbn10, isbn13
}

// workDescription handles the description field, which is either a plain
// string or a typed {"type": "/type/text", "value": "..."} object.
func workDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return strings.TrimSpace(scalar)
	}
	var typed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &typed); err == nil {
		return strings.TrimSpace(typed.Value)
	}
	return ""
}
