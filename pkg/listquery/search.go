package listquery

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Refine keeps the rows whose text fuzzily contains term, ignoring case and
// diacritics. An empty term returns rows unchanged.
func Refine[T any](rows []T, term string, text func(T) string) []T {
	term = strings.TrimSpace(term)
	if term == "" {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if fuzzy.MatchNormalizedFold(term, text(row)) {
			out = append(out, row)
		}
	}
	return out
}

// RankOptions orders option labels by fuzzy distance to term, best match first.
func RankOptions(term string, options []string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return options
	}
	ranks := fuzzy.RankFindNormalizedFold(term, options)
	sort.Sort(ranks)
	out := make([]string, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	return out
}
