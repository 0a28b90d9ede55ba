// Package listquery holds the list-view core shared by every paginated screen:
// filter state, sort state, page state, the serializer that turns them into
// upstream query parameters, cache keys, envelope normalisation and the
// derived view model.
package listquery

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AllSentinel is the value list controls use for "no restriction".
const AllSentinel = "all"

// DateLayout is the wire format of date filters.
const DateLayout = "2006-01-02"

// Kind selects how a raw filter value is coerced before it is sent upstream.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindDate
)

// FilterSpec describes one filter key accepted from clients.
type FilterSpec struct {
	Key   string
	Param string
	Kind  Kind
	// Resolve may rename the outgoing parameter based on the coerced value.
	// Returning "" keeps Param.
	Resolve func(value string) string
}

func (s FilterSpec) param() string {
	if s.Param != "" {
		return s.Param
	}
	return s.Key
}

// FilterSet maps filter keys to raw UI values.
type FilterSet map[string]string

// IsUnset reports whether v is the "all"/empty sentinel.
func IsUnset(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || strings.EqualFold(trimmed, AllSentinel)
}

// Active reports whether at least one filter restricts the result set.
func (f FilterSet) Active() bool {
	for _, v := range f {
		if !IsUnset(v) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (f FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SerializeOptions controls parameter naming and pagination for one endpoint.
type SerializeOptions struct {
	SortParam      string
	DirectionParam string
	PageParam      string
	PerPageParam   string
	// Paginate emits page/per_page; endpoints returning full lists leave it off.
	Paginate bool
	// Overrides are applied last and win over user filters (role scope).
	Overrides url.Values
}

func (o SerializeOptions) withDefaults() SerializeOptions {
	if o.SortParam == "" {
		o.SortParam = "sort"
	}
	if o.DirectionParam == "" {
		o.DirectionParam = "direction"
	}
	if o.PageParam == "" {
		o.PageParam = "page"
	}
	if o.PerPageParam == "" {
		o.PerPageParam = "per_page"
	}
	return o
}

// Serialize converts list state into upstream query parameters.
// Unset filters and values that fail coercion are omitted, never sent empty.
func Serialize(specs []FilterSpec, st State, opts SerializeOptions) url.Values {
	opts = opts.withDefaults()
	params := url.Values{}

	for _, spec := range specs {
		raw, ok := st.Filters[spec.Key]
		if !ok || IsUnset(raw) {
			continue
		}
		value, ok := Coerce(spec.Kind, raw)
		if !ok {
			continue
		}
		name := spec.param()
		if spec.Resolve != nil {
			if resolved := spec.Resolve(value); resolved != "" {
				name = resolved
			}
		}
		params.Set(name, value)
	}

	if st.Sort.Active() {
		params.Set(opts.SortParam, st.Sort.Field)
		params.Set(opts.DirectionParam, string(st.Sort.Direction.normalize()))
	}

	if opts.Paginate {
		page := st.Page.Page
		if page < 1 {
			page = 1
		}
		params.Set(opts.PageParam, strconv.Itoa(page))
		if st.Page.PerPage > 0 {
			params.Set(opts.PerPageParam, strconv.Itoa(st.Page.PerPage))
		}
	}

	for name, values := range opts.Overrides {
		if len(values) == 0 {
			continue
		}
		params[name] = append([]string(nil), values...)
	}

	return params
}

// Coerce converts a raw UI value into its wire representation.
func Coerce(kind Kind, raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	switch kind {
	case KindInt:
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return "", false
		}
		return strconv.Itoa(n), true
	case KindBool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return "", false
		}
		if b {
			return "1", true
		}
		return "0", true
	case KindDate:
		t, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return "", false
		}
		return t.Format(DateLayout), true
	default:
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	}
}
