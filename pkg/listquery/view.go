package listquery

import (
	stdErrors "errors"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

// ViewState tells clients which panel to render.
type ViewState string

const (
	StateReady     ViewState = "ready"
	StateEmpty     ViewState = "empty"
	StateError     ViewState = "error"
	StateForbidden ViewState = "forbidden"
)

const (
	MessageNoMatches  = "no results match the current filters"
	MessageNothingYet = "nothing has been created yet"
	MessageForbidden  = "you do not have permission to view this list"
)

// Capabilities gates the row actions a client may offer.
type Capabilities struct {
	CanView   bool `json:"can_view"`
	CanCreate bool `json:"can_create"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// View is the derived list view model.
type View[T any] struct {
	Rows         []T          `json:"rows"`
	Pagination   Pagination   `json:"pagination"`
	Window       []PageItem   `json:"window,omitempty"`
	State        ViewState    `json:"state"`
	Message      string       `json:"message,omitempty"`
	Code         string       `json:"code,omitempty"`
	Details      any          `json:"details,omitempty"`
	Retryable    bool         `json:"retryable"`
	Filtered     bool         `json:"filtered"`
	Sort         SortSpec     `json:"sort"`
	Capabilities Capabilities `json:"capabilities"`
	// Status is the HTTP status of a failed view.
	Status int `json:"-"`
}

// Ready builds the view for a successful fetch. Zero rows yield StateEmpty with
// a message that depends on whether filters or a search term are active.
func Ready[T any](rows []T, p Pagination, st State, caps Capabilities) View[T] {
	if rows == nil {
		rows = []T{}
	}
	v := View[T]{
		Rows:         rows,
		Pagination:   p,
		Window:       Window(p.Page, p.LastPage),
		State:        StateReady,
		Filtered:     st.Narrowed(),
		Sort:         st.Sort,
		Capabilities: caps,
	}
	if len(rows) == 0 {
		v.State = StateEmpty
		if v.Filtered {
			v.Message = MessageNoMatches
		} else {
			v.Message = MessageNothingYet
		}
	}
	return v
}

// Failed builds the view for a failed fetch. Permission failures are reported
// as StateForbidden, everything else as StateError.
func Failed[T any](err error, st State, caps Capabilities) View[T] {
	v := View[T]{
		Rows:         []T{},
		Pagination:   Pagination{Page: st.Page.Page, PerPage: st.Page.PerPage},
		State:        StateError,
		Filtered:     st.Narrowed(),
		Sort:         st.Sort,
		Capabilities: caps,
	}
	if appErrors.IsForbidden(err) {
		v.State = StateForbidden
		v.Code = appErrors.ErrForbidden.Code
		v.Message = MessageForbidden
		v.Status = appErrors.ErrForbidden.Status
		return v
	}

	appErr := appErrors.FromError(err)
	v.Code = appErr.Code
	v.Message = appErr.Message
	v.Status = appErr.Status
	v.Retryable = appErrors.IsRetryable(err)
	if len(appErr.Details) > 0 {
		v.Details = appErr.Details
	}
	if stdErrors.Is(err, ErrUnsupportedShape) {
		v.Retryable = false
	}
	return v
}
