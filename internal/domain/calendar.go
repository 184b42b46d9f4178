package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateParts is a calendar date kept as separate components. A zero component means unknown.
type DateParts struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// IsZero reports whether every component is unset.
func (d DateParts) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// DatePartsFromTime splits t into components.
func DatePartsFromTime(t time.Time) DateParts {
	if t.IsZero() {
		return DateParts{}
	}
	return DateParts{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Slash formats the date as dd/mm/yyyy, or "" when zero.
func (d DateParts) Slash() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
}

// ParseDateParts interprets the date encodings found in event data: DateParts, time.Time,
// ISO-8601 strings ("2016-09-12" or RFC 3339) and {year, month, day} maps with numeric or string
// components.
func ParseDateParts(raw any) (DateParts, bool) {
	switch v := raw.(type) {
	case DateParts:
		return v, !v.IsZero()
	case *DateParts:
		if v == nil {
			return DateParts{}, false
		}
		return *v, !v.IsZero()
	case time.Time:
		d := DatePartsFromTime(v)
		return d, !d.IsZero()
	case string:
		return parseDateString(v)
	case map[string]any:
		d := DateParts{Year: componentInt(v["year"]), Month: componentInt(v["month"]), Day: componentInt(v["day"])}
		return d, !d.IsZero()
	}
	return DateParts{}, false
}

func parseDateString(value string) (DateParts, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DateParts{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return DatePartsFromTime(t), true
	}
	if len(value) >= 10 {
		if t, err := time.Parse(time.DateOnly, value[:10]); err == nil {
			return DatePartsFromTime(t), true
		}
	}
	return DateParts{}, false
}

func componentInt(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

// MonthName is one entry of the Ethiopian month table.
type MonthName struct {
	Am string
	En string
}

// EthiopianMonths is the fixed 12-entry month name table indexed by month-1. Pagume, the
// thirteenth short month, is never looked up by numeric month index.
var EthiopianMonths = [12]MonthName{
	{Am: "መስከረም", En: "Meskerem"},
	{Am: "ጥቅምት", En: "Tikimt"},
	{Am: "ኅዳር", En: "Hidar"},
	{Am: "ታኅሣሥ", En: "Tahsas"},
	{Am: "ጥር", En: "Tir"},
	{Am: "የካቲት", En: "Yekatit"},
	{Am: "መጋቢት", En: "Megabit"},
	{Am: "ሚያዝያ", En: "Miyazya"},
	{Am: "ግንቦት", En: "Ginbot"},
	{Am: "ሰኔ", En: "Sene"},
	{Am: "ሐምሌ", En: "Hamle"},
	{Am: "ነሐሴ", En: "Nehase"},
}

// EthiopianMonthName looks up month (1-12) in the month table.
func EthiopianMonthName(month int) (MonthName, bool) {
	if month < 1 || month > len(EthiopianMonths) {
		return MonthName{}, false
	}
	return EthiopianMonths[month-1], true
}
