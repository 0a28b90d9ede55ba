package service

import (
	"context"
	"net/url"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// Lister is an upstream collection.
type Lister[T any] interface {
	List(ctx context.Context, params url.Values) (listquery.Envelope[T], error)
}

// ListDescriptor configures one list screen.
type ListDescriptor[T any] struct {
	Resource models.Resource
	Source   Lister[T]
	Filters  []listquery.FilterSpec
	// ServerSort lists the fields the upstream API can order by. Any other
	// field in Fields is sorted by the gateway over the fetched rows.
	ServerSort []string
	Fields     listquery.FieldSet[T]
	Params     listquery.SerializeOptions
	// ServerPaginated resources send page/per_page upstream. The rest are
	// fetched whole and paginated here.
	ServerPaginated bool
	// Scope returns parameters forced by the caller's role. They win over user filters.
	Scope func(models.Principal) url.Values
	// Prepare may rewrite filter specs per request (e.g. after a lookup).
	Prepare    func(ctx context.Context, p models.Principal, specs []listquery.FilterSpec, st listquery.State) []listquery.FilterSpec
	SearchText func(T) string
	TTL        time.Duration
}

// Sortable returns every field a client may sort by.
func (d ListDescriptor[T]) Sortable() []string {
	fields := append([]string(nil), d.ServerSort...)
	for _, name := range d.Fields.Names() {
		if !slices.Contains(fields, name) {
			fields = append(fields, name)
		}
	}
	return fields
}

// ListRequest is the parsed client list state plus an optional refinement term
// applied to the fetched rows.
type ListRequest struct {
	State  listquery.State
	Search string
}

// ListResult is a view model plus cache bookkeeping for response meta.
type ListResult[T any] struct {
	View     listquery.View[T]
	CacheHit bool
}

// ListService renders list views for one resource.
type ListService[T any] struct {
	desc   ListDescriptor[T]
	cache  *QueryCache
	locale string
	limits listquery.Limits
	logger *zap.Logger
}

// NewListService binds a descriptor to the shared query cache.
func NewListService[T any](desc ListDescriptor[T], cache *QueryCache, locale string, limits listquery.Limits, logger *zap.Logger) *ListService[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListService[T]{desc: desc, cache: cache, locale: locale, limits: limits, logger: logger}
}

// Resource returns the resource family served.
func (s *ListService[T]) Resource() models.Resource {
	return s.desc.Resource
}

// Parse rebuilds list state from client query parameters.
func (s *ListService[T]) Parse(q url.Values) ListRequest {
	return ListRequest{
		State:  listquery.ParseState(q, s.desc.Filters, s.desc.Sortable(), s.limits),
		Search: q.Get(listquery.ParamSearch),
	}
}

// List fetches and derives the view. Failures are reported through the view
// state, never as a Go error, so empty, error and forbidden stay distinct.
func (s *ListService[T]) List(ctx context.Context, p models.Principal, req ListRequest) ListResult[T] {
	caps := models.CapabilitiesFor(p.Role, s.desc.Resource)
	st := req.State
	if s.desc.SearchText != nil {
		st.Search = req.Search
	}
	if !caps.CanView {
		return ListResult[T]{View: listquery.Failed[T](appErrors.ErrForbidden, st, caps)}
	}

	env, hit, err := s.fetch(ctx, p, st)
	if err != nil {
		return ListResult[T]{View: listquery.Failed[T](err, st, caps)}
	}

	if s.desc.ServerPaginated && env.Paginated {
		pagination := listquery.Reconcile(st.Page, env.MetaPtr(), len(env.Data))
		if pagination.Clamped {
			// The requested page no longer exists; show the last one instead of an empty page.
			requested := pagination.Requested
			st.SetPage(pagination.Page)
			env, hit, err = s.fetch(ctx, p, st)
			if err != nil {
				return ListResult[T]{View: listquery.Failed[T](err, st, caps)}
			}
			pagination = listquery.Reconcile(st.Page, env.MetaPtr(), len(env.Data))
			pagination.Clamped = true
			pagination.Requested = requested
		}
		rows := s.arrange(env.Data, st)
		pagination = pagination.Narrow(len(rows), len(env.Data))
		return ListResult[T]{View: listquery.Ready(rows, pagination, st, caps), CacheHit: hit}
	}

	rows := s.arrange(env.Data, st)
	pagination := listquery.Reconcile(st.Page, nil, len(rows))
	if pagination.Clamped {
		st.SetPage(pagination.Page)
	}
	rows = listquery.Paginate(rows, pagination.Page, pagination.PerPage)
	return ListResult[T]{View: listquery.Ready(rows, pagination, st, caps), CacheHit: hit}
}

func (s *ListService[T]) fetch(ctx context.Context, p models.Principal, st listquery.State) (listquery.Envelope[T], bool, error) {
	specs := s.desc.Filters
	if s.desc.Prepare != nil {
		specs = s.desc.Prepare(ctx, p, specs, st)
	}

	outgoing := st
	if !slices.Contains(s.desc.ServerSort, st.Sort.Field) {
		outgoing.Sort = listquery.SortSpec{}
	}
	opts := s.desc.Params
	opts.Paginate = s.desc.ServerPaginated
	if s.desc.Scope != nil {
		opts.Overrides = s.desc.Scope(p)
	}
	params := listquery.Serialize(specs, outgoing, opts)

	resource := string(s.desc.Resource)
	key := listquery.CacheKey(resource, ScopeOf(p), params)
	return Fetch(ctx, s.cache, resource, key, s.desc.TTL, func(ctx context.Context) (listquery.Envelope[T], error) {
		return s.desc.Source.List(ctx, params)
	})
}

// arrange applies the gateway-side sort and refinement.
func (s *ListService[T]) arrange(rows []T, st listquery.State) []T {
	if st.Sort.Active() && !slices.Contains(s.desc.ServerSort, st.Sort.Field) {
		rows = listquery.SortRows(rows, st.Sort, s.desc.Fields, listquery.NewCollator(s.locale))
	}
	if s.desc.SearchText != nil {
		rows = listquery.Refine(rows, st.Search, s.desc.SearchText)
	}
	return rows
}

// ScopeOf is the cache scope of a caller.
func ScopeOf(p models.Principal) listquery.Scope {
	return listquery.Scope{Role: string(p.Role), InstitutionID: p.InstitutionID}
}
