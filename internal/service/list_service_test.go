package service

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

type fakeLister[T any] struct {
	mu      sync.Mutex
	calls   []url.Values
	respond func(params url.Values) (listquery.Envelope[T], error)
}

func (f *fakeLister[T]) List(_ context.Context, params url.Values) (listquery.Envelope[T], error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	return f.respond(params)
}

type fakeInstitutionLookup map[int64]models.Institution

func (f fakeInstitutionLookup) Get(_ context.Context, id int64) (*models.Institution, error) {
	inst, ok := f[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return &inst, nil
}

var (
	superAdmin  = models.Principal{UserID: "u1", Role: models.RoleSuperAdmin}
	schoolAdmin = models.Principal{UserID: "u2", Role: models.RoleSchoolAdmin, InstitutionID: 42}
	teacher     = models.Principal{UserID: "u3", Role: models.RoleTeacher, InstitutionID: 42}
	testLimits  = listquery.Limits{DefaultPerPage: 2, MaxPerPage: 50}
)

func paged[T any](rows []T, page, lastPage, total int) listquery.Envelope[T] {
	return listquery.Envelope[T]{
		Data:      rows,
		Meta:      listquery.ServerPageMeta{CurrentPage: page, LastPage: lastPage, PerPage: 2, Total: total},
		Paginated: true,
	}
}

func newSurveyService(src Lister[models.Survey]) *ListService[models.Survey] {
	qc, _ := newTestQueryCache()
	return NewListService(SurveyListDescriptor(src), qc, "az", testLimits, nil)
}

func TestListServiceForbiddenRoleGetsForbiddenView(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		t.Fatal("upstream must not be called")
		return listquery.Envelope[models.Survey]{}, nil
	}}
	svc := newSurveyService(src)

	res := svc.List(context.Background(), teacher, svc.Parse(url.Values{}))
	assert.Equal(t, listquery.StateForbidden, res.View.State)
	assert.Equal(t, 403, res.View.Status)
}

func TestListServiceDistinguishesEmptyFromError(t *testing.T) {
	fail := false
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		if fail {
			return listquery.Envelope[models.Survey]{}, appErrors.ErrUpstreamUnavailable
		}
		return paged[models.Survey](nil, 1, 0, 0), nil
	}}
	svc := newSurveyService(src)

	empty := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{}))
	assert.Equal(t, listquery.StateEmpty, empty.View.State)
	assert.Equal(t, listquery.MessageNothingYet, empty.View.Message)

	filtered := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"status": {"draft"}}))
	assert.Equal(t, listquery.StateEmpty, filtered.View.State)
	assert.Equal(t, listquery.MessageNoMatches, filtered.View.Message)

	fail = true
	failed := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"status": {"closed"}}))
	assert.Equal(t, listquery.StateError, failed.View.State)
	assert.True(t, failed.View.Retryable)
	assert.Equal(t, 502, failed.View.Status)
}

func TestListServiceSerializesFiltersAndCaches(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		return paged([]models.Survey{{ID: 1, Title: "A"}}, 1, 1, 1), nil
	}}
	svc := newSurveyService(src)
	q := url.Values{"status": {"all"}, "survey_type": {""}, "start_date": {"2024-13-01"}, "search": {" math "}, "unknown": {"x"}, "sort": {"title"}, "direction": {"desc"}}

	first := svc.List(context.Background(), superAdmin, svc.Parse(q))
	second := svc.List(context.Background(), superAdmin, svc.Parse(q))

	require.Len(t, src.calls, 1)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, url.Values{
		"search":    {"math"},
		"sort":      {"title"},
		"direction": {"desc"},
		"page":      {"1"},
		"per_page":  {"2"},
	}, src.calls[0])
}

func TestListServiceSearchWithoutMatchesIsFiltered(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		return paged([]models.Survey{{ID: 1, Title: "Math"}, {ID: 2, Title: "Physics"}}, 1, 1, 2), nil
	}}
	svc := newSurveyService(src)

	res := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"q": {"zzzz"}}))

	require.Len(t, src.calls, 1)
	assert.False(t, src.calls[0].Has("q"))
	assert.Equal(t, listquery.StateEmpty, res.View.State)
	assert.True(t, res.View.Filtered)
	assert.Equal(t, listquery.MessageNoMatches, res.View.Message)
	assert.Empty(t, res.View.Rows)
	assert.Equal(t, 0, res.View.Pagination.Total)
	assert.False(t, res.View.Pagination.HasNext)
}

func TestListServiceSearchOnOneOfSeveralPagesIsPageLocal(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		return paged([]models.Survey{{ID: 1, Title: "Math"}, {ID: 2, Title: "Physics"}}, 1, 3, 6), nil
	}}
	svc := newSurveyService(src)

	res := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"q": {"math"}}))

	assert.Equal(t, listquery.StateReady, res.View.State)
	require.Len(t, res.View.Rows, 1)
	assert.True(t, res.View.Pagination.PageLocal)
	assert.Equal(t, 6, res.View.Pagination.Total)
}

func TestListServiceRefetchesClampedPage(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(params url.Values) (listquery.Envelope[models.Survey], error) {
		if params.Get("page") == "5" {
			return paged[models.Survey](nil, 5, 3, 6), nil
		}
		return paged([]models.Survey{{ID: 5}, {ID: 6}}, 3, 3, 6), nil
	}}
	svc := newSurveyService(src)

	res := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"page": {"5"}}))

	require.Len(t, src.calls, 2)
	assert.Equal(t, "3", src.calls[1].Get("page"))
	assert.Equal(t, listquery.StateReady, res.View.State)
	assert.Len(t, res.View.Rows, 2)
	assert.Equal(t, 3, res.View.Pagination.Page)
	assert.True(t, res.View.Pagination.Clamped)
	assert.Equal(t, 5, res.View.Pagination.Requested)
	assert.False(t, res.View.Pagination.HasNext)
}

func TestListServiceClientSortKeepsSortOffTheWire(t *testing.T) {
	src := &fakeLister[models.Survey]{respond: func(url.Values) (listquery.Envelope[models.Survey], error) {
		return paged([]models.Survey{{ID: 1, ResponseCount: 3}, {ID: 2, ResponseCount: 9}}, 1, 1, 2), nil
	}}
	svc := newSurveyService(src)

	res := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"sort": {"response_count"}, "direction": {"desc"}}))

	require.Len(t, src.calls, 1)
	assert.Empty(t, src.calls[0].Get("sort"))
	assert.Equal(t, []int64{2, 1}, []int64{res.View.Rows[0].ID, res.View.Rows[1].ID})
}

func TestListServiceInstitutionBoundScopeOverridesFilter(t *testing.T) {
	src := &fakeLister[models.Student]{respond: func(url.Values) (listquery.Envelope[models.Student], error) {
		return paged([]models.Student{{ID: 1}}, 1, 1, 1), nil
	}}
	qc, _ := newTestQueryCache()
	svc := NewListService(StudentListDescriptor(src), qc, "az", testLimits, nil)

	svc.List(context.Background(), schoolAdmin, svc.Parse(url.Values{"institution_id": {"7"}}))
	svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"institution_id": {"7"}}))

	require.Len(t, src.calls, 2)
	assert.Equal(t, "42", src.calls[0].Get("institution_id"))
	assert.Equal(t, "7", src.calls[1].Get("institution_id"))
}

func TestListServiceClientPaginatesWholeLists(t *testing.T) {
	score := func(f float64) *float64 { return &f }
	src := &fakeLister[models.AssessmentResult]{respond: func(url.Values) (listquery.Envelope[models.AssessmentResult], error) {
		return listquery.Envelope[models.AssessmentResult]{Data: []models.AssessmentResult{
			{ID: 1, Score: score(70)},
			{ID: 2, Score: nil},
			{ID: 3, Score: score(90)},
			{ID: 4, Score: score(80)},
		}}, nil
	}}
	qc, _ := newTestQueryCache()
	svc := NewListService(AssessmentListDescriptor(src), qc, "az", testLimits, nil)

	first := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"sort": {"score"}, "direction": {"desc"}}))
	second := svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"sort": {"score"}, "direction": {"desc"}, "page": {"2"}}))

	assert.Empty(t, src.calls[0].Get("page"))
	assert.Equal(t, []int64{3, 4}, []int64{first.View.Rows[0].ID, first.View.Rows[1].ID})
	assert.Equal(t, []int64{1, 2}, []int64{second.View.Rows[0].ID, second.View.Rows[1].ID})
	assert.Equal(t, 4, first.View.Pagination.Total)
	assert.Equal(t, 2, first.View.Pagination.LastPage)
}

func TestInstitutionParentFilterUsesParentLevel(t *testing.T) {
	src := &fakeLister[models.Institution]{respond: func(url.Values) (listquery.Envelope[models.Institution], error) {
		return paged([]models.Institution{{ID: 100}}, 1, 1, 1), nil
	}}
	lookup := fakeInstitutionLookup{
		2: {ID: 2, Level: 2},
		3: {ID: 3, Level: 3},
		4: {ID: 4, Level: 4},
	}
	qc, _ := newTestQueryCache()
	svc := NewListService(InstitutionListDescriptor(src, lookup, qc, nil), qc, "az", testLimits, nil)

	for _, parent := range []string{"2", "3", "4", "99"} {
		svc.List(context.Background(), superAdmin, svc.Parse(url.Values{"parent": {parent}}))
	}

	require.Len(t, src.calls, 4)
	assert.Equal(t, "2", src.calls[0].Get("region_id"))
	assert.Equal(t, "3", src.calls[1].Get("sector_id"))
	assert.Equal(t, "4", src.calls[2].Get("parent_id"))
	assert.Equal(t, "99", src.calls[3].Get("parent_id"))
}
