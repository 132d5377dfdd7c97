package common

import (
	"encoding/json"
	"testing"
)

func TestJoinNames(t *testing.T) {
	if got := JoinNames([]string{"Frank Herbert", "  ", "Brian Herbert"}); got != "Frank Herbert, Brian Herbert" {
		t.Fatalf("unexpected join: %q", got)
	}
	if got := JoinNames(nil); got != "" {
		t.Fatalf("expected empty string for nil input, got %q", got)
	}
}

func TestStringOrList(t *testing.T) {
	if got := StringOrList(json.RawMessage(`"Ace Books"`)); got != "Ace Books" {
		t.Fatalf("scalar: %q", got)
	}
	if got := StringOrList(json.RawMessage(`["Ace", "Chilton"]`)); got != "Ace, Chilton" {
		t.Fatalf("list: %q", got)
	}
	if got := StringOrList(json.RawMessage(`42`)); got != "" {
		t.Fatalf("unexpected type should yield empty, got %q", got)
	}
}

func TestCapList(t *testing.T) {
	got := CapList([]string{"a", "", "b", "c", "d", "e", "f"}, 5)
	if len(got) != 5 || got[0] != "a" || got[4] != "e" {
		t.Fatalf("unexpected capped list: %v", got)
	}
	if CapList(nil, 5) != nil {
		t.Fatal("nil input should stay nil")
	}
	if CapList([]string{" ", ""}, 5) != nil {
		t.Fatal("all-blank input should yield nil")
	}
}

func TestExpandYearOnly(t *testing.T) {
	cases := map[string]string{
		"1965":       "1965-01-01",
		"2005-11-15": "2005-11-15",
		"196":        "196",
		"abcd":       "abcd",
		"":           "",
	}
	for input, want := range cases {
		if got := ExpandYearOnly(input); got != want {
			t.Fatalf("%q: expected %q, got %q", input, want, got)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"978-0-441-17271-9": "9780441172719",
		"0 441 17271 7":     "0441172717",
		"055380457x":        "055380457X",
		"isbn-1234":         "",
	}
	for input, want := range cases {
		if got := DigitsOnly(input); got != want {
			t.Fatalf("%q: expected %q, got %q", input, want, got)
		}
	}
}
