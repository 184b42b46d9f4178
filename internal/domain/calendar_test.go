package domain

import (
	"testing"
	"time"
)

func TestParseDateParts(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want DateParts
		ok   bool
	}{
		{"iso date", "2016-09-12", DateParts{2016, 9, 12}, true},
		{"rfc3339", "2016-09-12T08:00:00Z", DateParts{2016, 9, 12}, true},
		{"time", time.Date(2015, time.March, 1, 0, 0, 0, 0, time.UTC), DateParts{2015, 3, 1}, true},
		{"map floats", map[string]any{"year": float64(1990), "month": float64(9), "day": float64(2)}, DateParts{1990, 9, 2}, true},
		{"map strings", map[string]any{"year": "1990", "month": "9", "day": ""}, DateParts{1990, 9, 0}, true},
		{"zero map", map[string]any{"year": 0, "month": "", "day": nil}, DateParts{}, false},
		{"blank", "   ", DateParts{}, false},
		{"garbage", "yesterday", DateParts{}, false},
		{"nil", nil, DateParts{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseDateParts(tc.raw)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ParseDateParts(%v) = %+v, %v; want %+v, %v", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestEthiopianMonthName(t *testing.T) {
	name, ok := EthiopianMonthName(9)
	if !ok || name.En != "Ginbot" || name.Am != "ግንቦት" {
		t.Fatalf("unexpected ninth month %+v", name)
	}
	if _, ok := EthiopianMonthName(0); ok {
		t.Fatalf("month 0 must not resolve")
	}
	if _, ok := EthiopianMonthName(13); ok {
		t.Fatalf("month 13 must not resolve")
	}
}

func TestDatePartsSlash(t *testing.T) {
	if got := (DateParts{2024, 3, 7}).Slash(); got != "07/03/2024" {
		t.Fatalf("unexpected slash format %q", got)
	}
	if got := (DateParts{}).Slash(); got != "" {
		t.Fatalf("expected empty string for zero date, got %q", got)
	}
}
