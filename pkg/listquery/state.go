package listquery

import "strings"

// Direction is the sort order of the single active sort field.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps anything other than "desc" to Asc.
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(Desc)) {
		return Desc
	}
	return Asc
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d.normalize() == Desc {
		return Asc
	}
	return Desc
}

func (d Direction) normalize() Direction {
	if d == Desc {
		return Desc
	}
	return Asc
}

// SortSpec is the single active sort column.
type SortSpec struct {
	Field     string    `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Active reports whether a sort field is selected.
func (s SortSpec) Active() bool {
	return s.Field != ""
}

// ToggleSort applies a header click: the same field flips, a new field starts ascending.
func ToggleSort(current SortSpec, field string) SortSpec {
	if field == "" {
		return SortSpec{}
	}
	if current.Field == field {
		return SortSpec{Field: field, Direction: current.Direction.Flip()}
	}
	return SortSpec{Field: field, Direction: Asc}
}

// PageState is the requested page and page size.
type PageState struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Normalize applies defaults and bounds.
func (p PageState) Normalize(defaultPerPage, maxPerPage int) PageState {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// State is the list reducer. Every mutation except SetPage returns to the first page.
type State struct {
	Filters FilterSet
	Sort    SortSpec
	Page    PageState
	// Search is the free-text term refined on the gateway. It never goes upstream.
	Search string
}

// Narrowed reports whether filters or a search term limit the rows.
func (s State) Narrowed() bool {
	return s.Filters.Active() || strings.TrimSpace(s.Search) != ""
}

// NewState returns an empty state on page 1.
func NewState(perPage int) State {
	return State{
		Filters: FilterSet{},
		Page:    PageState{Page: 1, PerPage: perPage},
	}
}

// SetFilter sets or clears (sentinel value) one filter.
func (s *State) SetFilter(key, value string) {
	if s.Filters == nil {
		s.Filters = FilterSet{}
	}
	if IsUnset(value) {
		delete(s.Filters, key)
	} else {
		s.Filters[key] = strings.TrimSpace(value)
	}
	s.Page.Page = 1
}

// ClearFilters removes every filter.
func (s *State) ClearFilters() {
	s.Filters = FilterSet{}
	s.Search = ""
	s.Page.Page = 1
}

// ToggleSort applies a header click on field.
func (s *State) ToggleSort(field string) {
	s.Sort = ToggleSort(s.Sort, field)
	s.Page.Page = 1
}

// SetSort replaces the sort spec.
func (s *State) SetSort(spec SortSpec) {
	if spec.Field == "" {
		spec = SortSpec{}
	} else {
		spec.Direction = spec.Direction.normalize()
	}
	s.Sort = spec
	s.Page.Page = 1
}

// SetPerPage changes the page size. Non-positive sizes keep the current size.
func (s *State) SetPerPage(perPage int) {
	if perPage > 0 {
		s.Page.PerPage = perPage
	}
	s.Page.Page = 1
}

// SetPage moves to page n (minimum 1).
func (s *State) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	s.Page.Page = n
}
