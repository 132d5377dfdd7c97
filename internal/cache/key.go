package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// queryFolder strips diacritics so "Müller" and "Muller" share a cache key.
var queryFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeQuery(raw string) string {
	trimmed := strings.TrimSpace(raw)
	folded, _, err := transform.String(queryFolder, trimmed)
	if err != nil {
		folded = trimmed
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// Key derives a deterministic cache key from the logical search inputs.
// Filter map iteration order never affects the result.
func Key(query, provider string, filters map[string]string) string {
	parts := []string{
		"q=" + normalizeQuery(query),
		"p=" + strings.ToLower(strings.TrimSpace(provider)),
	}

	if len(filters) > 0 {
		names := make([]string, 0, len(filters))
		for name := range filters {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			value := strings.ToLower(strings.TrimSpace(filters[name]))
			pairs = append(pairs, strings.ToLower(strings.TrimSpace(name))+"="+value)
		}
		parts = append(parts, "f="+strings.Join(pairs, ";"))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
