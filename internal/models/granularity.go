package models

import (
	"fmt"
	"time"
)

// Granularity is the bucket size of a price series
type Granularity string

const (
	GranularityDaily   Granularity = "1d"
	GranularityWeekly  Granularity = "1wk"
	GranularityMonthly Granularity = "1mo"
)

// ParseGranularity validates an interval string such as "1wk"
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if !g.Valid() {
		return "", fmt.Errorf("unsupported granularity: %q", s)
	}
	return g, nil
}

// Valid reports whether g is one of the supported buckets
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// PointsPerMonth is the number of buckets expected in one calendar month.
// Daily uses trading days, not calendar days.
func (g Granularity) PointsPerMonth() float64 {
	switch g {
	case GranularityDaily:
		return 21
	case GranularityWeekly:
		return 4.3
	case GranularityMonthly:
		return 1
	}
	return 0
}

// Truncate returns the UTC start of the bucket containing t.
// Weekly buckets start on Monday.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func (g Granularity) String() string { return string(g) }

// supportedRanges maps a history span in months to the range label used in
// responses and upstream queries.
var supportedRanges = []struct {
	months int
	label  string
}{
	{1, "1mo"},
	{3, "3mo"},
	{6, "6mo"},
	{12, "1y"},
	{24, "2y"},
	{60, "5y"},
	{120, "10y"},
}

// RangeLabel returns the range label for a supported span
func RangeLabel(months int) (string, bool) {
	for _, r := range supportedRanges {
		if r.months == months {
			return r.label, true
		}
	}
	return "", false
}

// SupportedMonths lists the accepted history spans in ascending order
func SupportedMonths() []int {
	out := make([]int, len(supportedRanges))
	for i, r := range supportedRanges {
		out[i] = r.months
	}
	return out
}

// RoundUpMonths returns the smallest supported span of at least n months.
// Spans beyond the largest supported range are clamped to it.
func RoundUpMonths(n int) int {
	for _, r := range supportedRanges {
		if r.months >= n {
			return r.months
		}
	}
	return supportedRanges[len(supportedRanges)-1].months
}

// CheckSpan enforces the granularity/range compatibility rule: daily buckets
// are only accepted for the shortest range.
func CheckSpan(months int, g Granularity) error {
	if _, ok := RangeLabel(months); !ok {
		return fmt.Errorf("unsupported range: %d months", months)
	}
	if !g.Valid() {
		return fmt.Errorf("unsupported granularity: %q", g)
	}
	if g == GranularityDaily && months != supportedRanges[0].months {
		return fmt.Errorf("granularity %s is only available for a %s range", g, supportedRanges[0].label)
	}
	return nil
}
