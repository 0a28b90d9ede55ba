package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/service"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

var admin = &models.Principal{UserID: "1", Role: models.RoleSuperAdmin, Token: "tok"}

func newGinContext(method, target string, body []byte, principal *models.Principal) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if principal != nil {
		c.Set(middleware.ContextUserKey, principal)
	}
	return c, w
}

type envelope struct {
	Data       json.RawMessage       `json:"data"`
	Error      *appErrors.Error      `json:"error"`
	Pagination *listquery.Pagination `json:"pagination"`
	Meta       map[string]any        `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type stubLists struct {
	result service.ListResult[models.Survey]
	query  url.Values
}

func (s *stubLists) Parse(q url.Values) service.ListRequest {
	s.query = q
	return service.ListRequest{State: listquery.NewState(10)}
}

func (s *stubLists) List(context.Context, models.Principal, service.ListRequest) service.ListResult[models.Survey] {
	return s.result
}

func TestListHandlerRequiresPrincipal(t *testing.T) {
	h := NewListHandler[models.Survey](&stubLists{})
	c, w := newGinContext(http.MethodGet, "/surveys", nil, nil)

	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListHandlerWritesViewAndCacheMeta(t *testing.T) {
	st := listquery.NewState(10)
	p := listquery.Reconcile(st.Page, nil, 1)
	lists := &stubLists{result: service.ListResult[models.Survey]{
		View:     listquery.Ready([]models.Survey{{ID: 1, Title: "Q1"}}, p, st, models.CapabilitiesFor(admin.Role, models.ResourceSurveys)),
		CacheHit: true,
	}}
	h := NewListHandler[models.Survey](lists)
	c, w := newGinContext(http.MethodGet, "/surveys?status=draft", nil, admin)
	middleware.WithResponseMeta()(c)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft", lists.query.Get("status"))
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.Total)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestListHandlerMapsFailedViewStatus(t *testing.T) {
	st := listquery.NewState(10)
	lists := &stubLists{result: service.ListResult[models.Survey]{
		View: listquery.Failed[models.Survey](appErrors.ErrUpstreamUnavailable, st, listquery.Capabilities{CanView: true}),
	}}
	h := NewListHandler[models.Survey](lists)
	c, w := newGinContext(http.MethodGet, "/surveys", nil, admin)

	h.List(c)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

type stubMutations struct {
	err      error
	lastBody dto.MutationRequest
	lastID   int64
}

func (s *stubMutations) Create(_ context.Context, _ models.Principal, r models.Resource, body dto.MutationRequest) (*dto.MutationResponse, error) {
	s.lastBody = body
	return &dto.MutationResponse{Resource: string(r), ID: 5}, s.err
}

func (s *stubMutations) Update(_ context.Context, _ models.Principal, r models.Resource, id int64, body dto.MutationRequest) (*dto.MutationResponse, error) {
	s.lastID, s.lastBody = id, body
	if s.err != nil {
		return nil, s.err
	}
	return &dto.MutationResponse{Resource: string(r), ID: id}, nil
}

func (s *stubMutations) Delete(_ context.Context, _ models.Principal, r models.Resource, id int64) (*dto.MutationResponse, error) {
	s.lastID = id
	return &dto.MutationResponse{Resource: string(r), ID: id}, s.err
}

func (s *stubMutations) ToggleStatus(_ context.Context, _ models.Principal, r models.Resource, id int64, req dto.StatusRequest) (*dto.MutationResponse, error) {
	s.lastID = id
	return &dto.MutationResponse{Resource: string(r), ID: id}, s.err
}

func TestMutationHandlerCreate(t *testing.T) {
	svc := &stubMutations{}
	h := NewMutationHandler(svc)
	c, w := newGinContext(http.MethodPost, "/tasks", []byte(`{"title":"x"}`), admin)

	h.Create(models.ResourceTasks)(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"title":"x"}`, string(svc.lastBody))
}

func TestMutationHandlerRejectsBadID(t *testing.T) {
	h := NewMutationHandler(&stubMutations{})
	c, w := newGinContext(http.MethodPut, "/tasks/abc", []byte(`{}`), admin)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Update(models.ResourceTasks)(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutationHandlerReportsInFlightConflict(t *testing.T) {
	svc := &stubMutations{err: appErrors.ErrMutationInFlight}
	h := NewMutationHandler(svc)
	c, w := newGinContext(http.MethodPut, "/tasks/3", []byte(`{}`), admin)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	h.Update(models.ResourceTasks)(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(3), svc.lastID)
	assert.Equal(t, appErrors.ErrMutationInFlight.Code, decode(t, w).Error.Code)
}

func TestMutationHandlerToggleStatusNeedsBody(t *testing.T) {
	h := NewMutationHandler(&stubMutations{})
	c, w := newGinContext(http.MethodPatch, "/surveys/3/status", []byte(`not json`), admin)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	h.ToggleStatus(models.ResourceSurveys)(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubAttendance struct {
	report *dto.AttendanceReport
	query  dto.AttendanceReportQuery
}

func (s *stubAttendance) Report(_ context.Context, _ models.Principal, q dto.AttendanceReportQuery, _ url.Values) (*dto.AttendanceReport, bool, error) {
	s.query = q
	return s.report, false, nil
}

type stubAttendanceExport struct {
	format export.Format
}

func (s *stubAttendanceExport) AttendanceExport(_ context.Context, _ models.Principal, _ dto.AttendanceReportQuery, _ url.Values, f export.Format) (*service.ExportFile, error) {
	s.format = f
	return &service.ExportFile{Filename: "attendance-report-01-02-2024.csv", ContentType: f.ContentType(), Data: []byte("a,b\n")}, nil
}

func TestReportHandlerAttendanceForbiddenView(t *testing.T) {
	st := listquery.NewState(10)
	report := &dto.AttendanceReport{Period: "weekly", Classes: []string{}}
	report.View = listquery.Failed[dto.AttendanceRow](appErrors.ErrForbidden, st, listquery.Capabilities{})
	attendance := &stubAttendance{report: report}
	h := NewReportHandler(attendance, nil, nil)
	c, w := newGinContext(http.MethodGet, "/attendance/reports?period=weekly&school_id=all", nil, admin)

	h.Attendance(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "weekly", attendance.query.Period)
	assert.Equal(t, "all", attendance.query.SchoolID)
	assert.Equal(t, appErrors.ErrForbidden.Code, decode(t, w).Error.Code)
}

func TestReportHandlerAttendanceExport(t *testing.T) {
	exporter := &stubAttendanceExport{}
	h := NewReportHandler(nil, nil, exporter)
	c, w := newGinContext(http.MethodGet, "/attendance/reports/export", nil, admin)

	h.AttendanceExport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, exporter.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-report-01-02-2024.csv")
}

func TestReportHandlerAttendanceExportRejectsFormat(t *testing.T) {
	h := NewReportHandler(nil, nil, &stubAttendanceExport{})
	c, w := newGinContext(http.MethodGet, "/attendance/reports/export?format=docx", nil, admin)

	h.AttendanceExport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubBulkExports struct {
	download *service.ExportDownload
	err      error
}

func (s *stubBulkExports) CreateJob(_ context.Context, _ models.Principal, req dto.BulkExportRequest) (*dto.ExportJobResponse, error) {
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued, Total: len(req.SurveyIDs)}, s.err
}

func (s *stubBulkExports) GetStatus(context.Context, models.Principal, string) (*dto.ExportStatusResponse, error) {
	return nil, s.err
}

func (s *stubBulkExports) ResolveDownload(context.Context, string) (*service.ExportDownload, error) {
	return s.download, s.err
}

func TestExportHandlerCreateBulkAccepted(t *testing.T) {
	h := NewExportHandler(&stubBulkExports{})
	c, w := newGinContext(http.MethodPost, "/surveys/exports", []byte(`{"survey_ids":[1,2]}`), admin)

	h.CreateBulk(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"total":2`)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey-results.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	h := NewExportHandler(&stubBulkExports{download: &service.ExportDownload{File: file, Filename: "survey-results.zip"}})
	c, w := newGinContext(http.MethodGet, "/export/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK", w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
}

func TestExportHandlerDownloadForbidden(t *testing.T) {
	h := NewExportHandler(&stubBulkExports{err: appErrors.ErrForbidden})
	c, w := newGinContext(http.MethodGet, "/export/bad", nil, nil)

	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type stubInvalidator struct {
	resources []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, resources ...string) error {
	s.resources = resources
	return nil
}

func TestCacheHandlerInvalidate(t *testing.T) {
	inv := &stubInvalidator{}
	h := NewCacheHandler(inv)

	c, w := newGinContext(http.MethodPost, "/cache/invalidate", []byte(`{"resources":["surveys","tasks"]}`), admin)
	h.Invalidate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"surveys", "tasks"}, inv.resources)

	c, w = newGinContext(http.MethodPost, "/cache/invalidate", []byte(`{"resources":["grades"]}`), admin)
	h.Invalidate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Probe{
		"cache":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return appErrors.ErrInternal },
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil, nil)

	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"cache":"ok"`)
}
