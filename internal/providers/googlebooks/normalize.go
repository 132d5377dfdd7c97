package googlebooks

import (
	"encoding/json"
	"strings"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/providers/common"
)

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		PrintType           string   `json:"printType"`
		Categories          []string `json:"categories"`
		Language            string   `json:"language"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
			Small          string `json:"small"`
			Medium         string `json:"medium"`
			Large          string `json:"large"`
			ExtraLarge     string `json:"extraLarge"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

// NormalizeVolume maps one Google Books volume into the canonical shape.
// Missing fields never fail normalization; they fall back to placeholders
// or zero values.
func NormalizeVolume(raw json.RawMessage) domain.BookResult {
	result := domain.BookResult{
		Provider: domain.ProviderGoogleBooks,
		Title:    domain.UnknownTitle,
		Author:   domain.UnknownAuthor,
		Raw:      raw,
	}

	var vol volume
	if err := json.Unmarshal(raw, &vol); err != nil {
		return result
	}
	info := vol.VolumeInfo

	result.ProviderID = vol.ID
	if title := strings.TrimSpace(info.Title); title != "" {
		result.Title = title
	}
	result.Subtitle = strings.TrimSpace(info.Subtitle)
	if author := common.JoinNames(info.Authors); author != "" {
		result.Author = author
	}
	result.Publisher = strings.TrimSpace(info.Publisher)
	result.PublishedDate = common.ExpandYearOnly(info.PublishedDate)
	result.Description = strings.TrimSpace(info.Description)
	if info.PageCount > 0 {
		result.PageCount = info.PageCount
	}
	result.Language = strings.ToLower(strings.TrimSpace(info.Language))
	result.Format = strings.ToLower(strings.TrimSpace(info.PrintType))
	result.Categories = common.CapList(info.Categories, common.MaxCategories)

	for _, ident := range info.IndustryIdentifiers {
		switch ident.Type {
		case "ISBN_10":
			result.ISBN10 = common.DigitsOnly(ident.Identifier)
		case "ISBN_13":
			result.ISBN13 = common.DigitsOnly(ident.Identifier)
		}
	}

	result.CoverImageURL = pickCover(info.ImageLinks.ExtraLarge,
		info.ImageLinks.Large,
		info.ImageLinks.Medium,
		info.ImageLinks.Small,
		info.ImageLinks.Thumbnail,
		info.ImageLinks.SmallThumbnail)

	return result
}

// pickCover takes the first non-empty link, largest first, and upgrades the
// scheme since the API still hands out http links.
func pickCover(links ...string) string {
	for _, link := range links {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}
		if strings.HasPrefix(link, "http://") {
			link = "https://" + strings.TrimPrefix(link, "http://")
		}
		return link
	}
	return ""
}
