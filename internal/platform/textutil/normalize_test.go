package textutil

import (
	"reflect"
	"testing"
)

func TestEqualFold(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "case insensitive", a: "A1", b: "a1", want: true},
		{name: "trims", a: "  ab-12 ", b: "AB-12", want: true},
		{name: "composed and decomposed", a: "café", b: "CAFÉ", want: true},
		{name: "ethiopic", a: "ሀ12", b: " ሀ12", want: true},
		{name: "different", a: "A1", b: "B2", want: false},
		{name: "empty never matches", a: "", b: "", want: false},
		{name: "blank never matches", a: "  ", b: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EqualFold(tc.a, tc.b); got != tc.want {
				t.Fatalf("EqualFold(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestFieldsSplitsWhitespaceRuns(t *testing.T) {
	got := Fields("  አበበ \t ከበደ  ተሰማ ")
	want := []string{"አበበ", "ከበደ", "ተሰማ"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
	if len(Fields("   ")) != 0 {
		t.Fatalf("expected no fields for blank input")
	}
}

func TestNormalizeFields(t *testing.T) {
	t.Run("trims keys and string values", func(t *testing.T) {
		input := map[string]any{
			" wifeNameAm ": " አልማዝ ",
			"count":        3,
			" ":            "ignored",
		}
		expected := map[string]any{
			"wifeNameAm": "አልማዝ",
			"count":      3,
		}
		actual := NormalizeFields(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeFields(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeFields(map[string]any{"": "x"}) != nil {
			t.Fatalf("expected nil when every key is blank")
		}
	})
}
