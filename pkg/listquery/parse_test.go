package listquery

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

var parseSpecs = []FilterSpec{{Key: "status"}, {Key: "type"}}

func TestParseState(t *testing.T) {
	q := url.Values{
		"status":    {"active"},
		"type":      {"all"},
		"unknown":   {"x"},
		"sort":      {"title"},
		"direction": {"DESC"},
		"page":      {"3"},
		"per_page":  {"500"},
	}

	st := ParseState(q, parseSpecs, []string{"title"}, Limits{DefaultPerPage: 20, MaxPerPage: 100})

	assert.Equal(t, FilterSet{"status": "active"}, st.Filters)
	assert.Equal(t, SortSpec{Field: "title", Direction: Desc}, st.Sort)
	assert.Equal(t, PageState{Page: 3, PerPage: 100}, st.Page)
}

func TestParseStateDropsUnsortableField(t *testing.T) {
	st := ParseState(url.Values{"sort": {"password"}}, parseSpecs, []string{"title"}, Limits{DefaultPerPage: 20})
	assert.False(t, st.Sort.Active())
}

func TestParseStateAppliesToggle(t *testing.T) {
	q := url.Values{
		"toggle_sort":    {"title"},
		"prev_sort":      {"title"},
		"prev_direction": {"asc"},
		"page":           {"4"},
	}

	st := ParseState(q, parseSpecs, []string{"title", "created_at"}, Limits{DefaultPerPage: 20})

	assert.Equal(t, SortSpec{Field: "title", Direction: Desc}, st.Sort)
	assert.Equal(t, 1, st.Page.Page)

	q.Set("toggle_sort", "created_at")
	st = ParseState(q, parseSpecs, []string{"title", "created_at"}, Limits{DefaultPerPage: 20})
	assert.Equal(t, SortSpec{Field: "created_at", Direction: Asc}, st.Sort)
}

func TestParseStateBadNumbersFallBack(t *testing.T) {
	st := ParseState(url.Values{"page": {"x"}, "per_page": {"-3"}}, nil, nil, Limits{DefaultPerPage: 15})
	assert.Equal(t, PageState{Page: 1, PerPage: 15}, st.Page)
}

func TestEncodeRoundTripsState(t *testing.T) {
	st := NewState(20)
	st.SetFilter("status", "active")
	st.ToggleSort("title")
	st.SetPage(2)

	back := ParseState(Encode(st), parseSpecs, []string{"title"}, Limits{DefaultPerPage: 20})
	assert.Equal(t, st, back)
}
