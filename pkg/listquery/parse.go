package listquery

import (
	"net/url"
	"strconv"
	"strings"
)

// Request query parameters understood by ParseState.
const (
	ParamSort          = "sort"
	ParamDirection     = "direction"
	ParamPage          = "page"
	ParamPerPage       = "per_page"
	ParamToggleSort    = "toggle_sort"
	ParamPrevSort      = "prev_sort"
	ParamPrevDirection = "prev_direction"
	ParamSearch        = "q"
)

// Limits bounds the page size accepted from clients.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
}

// ParseState rebuilds list state from a client query. Only keys described by
// specs become filters. Sort fields outside sortable are dropped. A
// toggle_sort parameter applies the header-click reducer to prev_sort and
// prev_direction, which also returns to page 1.
func ParseState(q url.Values, specs []FilterSpec, sortable []string, limits Limits) State {
	st := NewState(limits.DefaultPerPage)
	for _, spec := range specs {
		if raw := q.Get(spec.Key); !IsUnset(raw) {
			st.Filters[spec.Key] = strings.TrimSpace(raw)
		}
	}

	allowed := func(field string) bool {
		for _, f := range sortable {
			if f == field {
				return true
			}
		}
		return false
	}

	if field := strings.TrimSpace(q.Get(ParamSort)); field != "" && allowed(field) {
		st.Sort = SortSpec{Field: field, Direction: ParseDirection(q.Get(ParamDirection))}
	}

	st.Page = PageState{
		Page:    atoiOr(q.Get(ParamPage), 1),
		PerPage: atoiOr(q.Get(ParamPerPage), 0),
	}.Normalize(limits.DefaultPerPage, limits.MaxPerPage)

	if toggle := strings.TrimSpace(q.Get(ParamToggleSort)); toggle != "" && allowed(toggle) {
		prev := SortSpec{}
		if field := strings.TrimSpace(q.Get(ParamPrevSort)); field != "" {
			prev = SortSpec{Field: field, Direction: ParseDirection(q.Get(ParamPrevDirection))}
		}
		st.Sort = prev
		st.ToggleSort(toggle)
	}
	return st
}

// Encode renders st back into client query parameters.
func Encode(st State) url.Values {
	q := url.Values{}
	for k, v := range st.Filters {
		if !IsUnset(v) {
			q.Set(k, v)
		}
	}
	if st.Sort.Active() {
		q.Set(ParamSort, st.Sort.Field)
		q.Set(ParamDirection, string(st.Sort.Direction.normalize()))
	}
	if term := strings.TrimSpace(st.Search); term != "" {
		q.Set(ParamSearch, term)
	}
	q.Set(ParamPage, strconv.Itoa(st.Page.Page))
	if st.Page.PerPage > 0 {
		q.Set(ParamPerPage, strconv.Itoa(st.Page.PerPage))
	}
	return q
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
