package listquery

// ServerPageMeta is the pagination block reported by the upstream API. It is authoritative when present.
type ServerPageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Pagination is the reconciled page state returned to clients.
type Pagination struct {
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	Total    int  `json:"total"`
	LastPage int  `json:"last_page"`
	HasPrev  bool `json:"has_prev"`
	HasNext  bool `json:"has_next"`
	// Clamped is set when the requested page was past the last page.
	Clamped bool `json:"clamped,omitempty"`
	// Requested holds the page asked for when Clamped is set.
	Requested int `json:"requested_page,omitempty"`
	// PageLocal is set when rows were refined within one server page of
	// several, so Total and LastPage still count the unrefined upstream rows.
	PageLocal bool `json:"page_local,omitempty"`
}

// Reconcile merges the requested page with server metadata. Without meta the
// page count is derived from total and the requested page size.
func Reconcile(requested PageState, meta *ServerPageMeta, total int) Pagination {
	p := Pagination{
		Page:    requested.Page,
		PerPage: requested.PerPage,
		Total:   total,
	}

	if meta != nil {
		p.Total = meta.Total
		if meta.PerPage > 0 {
			p.PerPage = meta.PerPage
		}
		if meta.CurrentPage > 0 {
			p.Page = meta.CurrentPage
		}
		p.LastPage = meta.LastPage
		if p.LastPage == 0 && p.Total > 0 && p.PerPage > 0 {
			p.LastPage = pageCount(p.Total, p.PerPage)
		}
	} else {
		p.LastPage = pageCount(total, p.PerPage)
	}

	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > p.LastPage {
		target := p.LastPage
		if target < 1 {
			target = 1
		}
		if p.Page != target {
			p.Requested = p.Page
			p.Page = target
			p.Clamped = true
		}
	}

	p.HasPrev = p.Page > 1
	p.HasNext = p.Page < p.LastPage
	return p
}

// Narrow adjusts p after the gateway kept only some of the fetched rows of a
// server page. A single-page result is recounted; otherwise p is marked PageLocal.
func (p Pagination) Narrow(kept, fetched int) Pagination {
	if kept == fetched {
		return p
	}
	if p.LastPage > 1 {
		p.PageLocal = true
		return p
	}
	p.Total = kept
	p.LastPage = pageCount(kept, p.PerPage)
	p.HasPrev = p.Page > 1
	p.HasNext = false
	return p
}

func pageCount(total, perPage int) int {
	if total <= 0 {
		return 0
	}
	if perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// Paginate slices rows for a client-paginated resource. page is 1-based and is
// expected to have been reconciled already.
func Paginate[T any](rows []T, page, perPage int) []T {
	if perPage <= 0 {
		return rows
	}
	start := (page - 1) * perPage
	if start < 0 || start >= len(rows) {
		return []T{}
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// PageItem is one entry of the page control: a page number or an ellipsis.
type PageItem struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// Window lists the page controls for current of last: first, last and
// current±1, with an ellipsis wherever two or more pages are hidden. A single
// hidden page is shown instead of an ellipsis. last <= 1 renders no controls.
func Window(current, last int) []PageItem {
	if last <= 1 {
		return nil
	}
	if current < 1 {
		current = 1
	}
	if current > last {
		current = last
	}

	pages := []int{1}
	for p := current - 1; p <= current+1; p++ {
		if p > 1 && p < last {
			pages = append(pages, p)
		}
	}
	pages = append(pages, last)

	items := make([]PageItem, 0, len(pages)+2)
	prev := 0
	for _, p := range pages {
		if p <= prev {
			continue
		}
		switch gap := p - prev - 1; {
		case prev == 0 || gap == 0:
		case gap == 1:
			items = append(items, PageItem{Page: prev + 1})
		default:
			items = append(items, PageItem{Ellipsis: true})
		}
		items = append(items, PageItem{Page: p, Current: p == current})
		prev = p
	}
	return items
}
