package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Period is the granularity of a profit report.
type Period string

var ErrInvalidPeriod = errors.New("invalid period")

// Periods lists the supported granularities in display order.
func Periods() []Period {
	return []Period{Daily, Weekly, Monthly, Yearly}
}

// ParsePeriod accepts a period name case-insensitively. An empty string means monthly.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Monthly, nil
	}
	p := Period(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

func (p Period) IsValid() bool {
	switch p {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (p Period) String() string {
	return string(p)
}

// Label renders a raw period key for display. Keys that do not parse as a
// date are returned unchanged.
func (p Period) Label(raw string) string {
	t, ok := parsePeriodKey(raw)
	if !ok {
		return raw
	}
	switch p {
	case Daily:
		return t.Format("2006-01-02")
	case Weekly:
		return "Week of " + t.Format("2006-01-02")
	case Yearly:
		return t.Format("2006")
	default:
		return t.Format("January 2006")
	}
}

// BucketLabel renders a month bucket such as "2024-01" as "January 2024".
func BucketLabel(bucket string) string {
	if bucket == FilterAll {
		return "All Months"
	}
	t, ok := parsePeriodKey(bucket)
	if !ok {
		return bucket
	}
	return t.Format("January 2006")
}

var periodLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parsePeriodKey(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
