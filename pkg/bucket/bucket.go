// Package bucket groups dated records into day, Monday-based week and calendar month buckets.
package bucket

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Period is the bucket width.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// ParsePeriod accepts daily, weekly and monthly.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case Daily, Weekly, Monthly:
		return p, nil
	case "":
		return Daily, nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// Bounds returns the first and last day of the bucket containing t.
func Bounds(t time.Time, period Period) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6)
	case Monthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, -1)
	default:
		return day, day
	}
}

// KeyFor renders the bucket key of t: YYYY-MM-DD of the bucket start for day
// and week buckets, YYYY-MM for months.
func KeyFor(t time.Time, period Period) string {
	start, _ := Bounds(t, period)
	if period == Monthly {
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// Group is one bucket of items.
type Group[T any] struct {
	Key   string
	Start time.Time
	End   time.Time
	Items []T
}

// Result holds the groups and the number of items skipped for lacking a usable date.
type Result[T any] struct {
	Groups  []Group[T]
	Dropped int
}

// GroupBy buckets items by dateOf. Items for which dateOf reports false are
// dropped. Groups are ordered by start date, newest first; items keep their input order.
func GroupBy[T any](items []T, dateOf func(T) (time.Time, bool), period Period) Result[T] {
	index := make(map[string]int)
	var res Result[T]
	for _, item := range items {
		at, ok := dateOf(item)
		if !ok {
			res.Dropped++
			continue
		}
		key := KeyFor(at, period)
		i, seen := index[key]
		if !seen {
			start, end := Bounds(at, period)
			res.Groups = append(res.Groups, Group[T]{Key: key, Start: start, End: end})
			i = len(res.Groups) - 1
			index[key] = i
		}
		res.Groups[i].Items = append(res.Groups[i].Items, item)
	}

	slices.SortStableFunc(res.Groups, func(a, b Group[T]) int {
		return b.Start.Compare(a.Start)
	})
	return res
}

// ParseDate parses YYYY-MM-DD and RFC 3339 timestamps.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
