package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestBoundsWeekStartsMonday(t *testing.T) {
	cases := map[string]string{
		"2024-01-01": "2024-01-01",
		"2024-01-03": "2024-01-01",
		"2024-01-07": "2024-01-01",
		"2024-01-08": "2024-01-08",
	}
	for day, monday := range cases {
		start, end := Bounds(date(day), Weekly)
		assert.Equal(t, date(monday), start, day)
		assert.Equal(t, date(monday).AddDate(0, 0, 6), end, day)
	}
}

func TestBoundsMonth(t *testing.T) {
	start, end := Bounds(date("2024-02-17"), Monthly)
	assert.Equal(t, date("2024-02-01"), start)
	assert.Equal(t, date("2024-02-29"), end)
}

func TestKeyFor(t *testing.T) {
	at := date("2024-03-14")
	assert.Equal(t, "2024-03-14", KeyFor(at, Daily))
	assert.Equal(t, "2024-03-11", KeyFor(at, Weekly))
	assert.Equal(t, "2024-03", KeyFor(at, Monthly))
}

type rec struct {
	Date string
	N    int
}

func TestGroupByOrdersNewestFirstAndDropsBadDates(t *testing.T) {
	items := []rec{
		{"2024-01-01", 1},
		{"2024-01-09", 2},
		{"not-a-date", 3},
		{"2024-01-02", 4},
		{"", 5},
	}

	res := GroupBy(items, func(r rec) (time.Time, bool) { return ParseDate(r.Date) }, Weekly)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, "2024-01-08", res.Groups[0].Key)
	assert.Equal(t, []rec{{"2024-01-09", 2}}, res.Groups[0].Items)
	assert.Equal(t, "2024-01-01", res.Groups[1].Key)
	assert.Equal(t, []rec{{"2024-01-01", 1}, {"2024-01-02", 4}}, res.Groups[1].Items)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("Weekly")
	require.NoError(t, err)
	assert.Equal(t, Weekly, p)

	p, err = ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, Daily, p)

	_, err = ParsePeriod("yearly")
	assert.Error(t, err)
}

func TestParseDateAcceptsTimestamps(t *testing.T) {
	at, ok := ParseDate("2024-01-05T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 5, at.Day())
}
