package cache

import "testing"

func TestKeyDeterministic(t *testing.T) {
	first := Key("dune", "google_books", map[string]string{"language": "en"})
	second := Key("dune", "google_books", map[string]string{"language": "en"})
	if first != second {
		t.Fatalf("expected identical keys, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex key, got %q", first)
	}
}

func TestKeyFilterOrderIndependent(t *testing.T) {
	a := Key("dune", "google_books", map[string]string{"language": "en", "printType": "books"})
	b := Key("dune", "google_books", map[string]string{"printType": "books", "language": "en"})
	if a != b {
		t.Fatalf("filter order changed the key: %s vs %s", a, b)
	}
}

func TestKeyNormalizesQuery(t *testing.T) {
	plain := Key("the hobbit", "open_library", nil)

	for _, variant := range []string{
		"The Hobbit",
		"  the   hobbit  ",
		"The\tHobbit",
	} {
		if got := Key(variant, "open_library", nil); got != plain {
			t.Fatalf("query %q produced different key", variant)
		}
	}
}

func TestKeyFoldsAccents(t *testing.T) {
	if Key("café", "open_library", nil) != Key("cafe", "open_library", nil) {
		t.Fatal("accented and plain queries should share a key")
	}
}

func TestKeyDiffersByProviderAndFilters(t *testing.T) {
	base := Key("dune", "google_books", nil)
	if Key("dune", "open_library", nil) == base {
		t.Fatal("different providers must not share a key")
	}
	if Key("dune", "google_books", map[string]string{"language": "fr"}) == base {
		t.Fatal("filters must fragment the key")
	}
	if Key("dune messiah", "google_books", nil) == base {
		t.Fatal("different queries must not share a key")
	}
}
