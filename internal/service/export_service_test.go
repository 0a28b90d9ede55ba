package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/repository"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/jobs"
	"github.com/noah-isme/atis-gateway/pkg/storage"
)

type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ExportJob
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]*models.ExportJob)}
}

func (m *memoryJobStore) Create(_ context.Context, job *models.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryJobStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	copied := *job
	return &copied, nil
}

func (m *memoryJobStore) Update(_ context.Context, id string, p repository.UpdateExportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return appErrors.ErrNotFound
	}
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Progress != nil {
		job.Progress = *p.Progress
	}
	if p.Succeeded != nil {
		job.Succeeded = *p.Succeeded
	}
	if p.Failed != nil {
		job.Failed = *p.Failed
	}
	if p.ResultURL != nil {
		job.ResultURL = p.ResultURL
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = p.ErrorMessage
	}
	if p.FinishedAt != nil {
		job.FinishedAt = p.FinishedAt
	}
	return nil
}

func (m *memoryJobStore) ListQueued(context.Context, int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memoryJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type fakeSurveyExporter struct {
	failing map[int64]bool
	tokens  []string
}

func (f *fakeSurveyExporter) Export(ctx context.Context, id int64, params url.Values) (*upstream.Blob, error) {
	f.tokens = append(f.tokens, upstream.TokenFrom(ctx))
	if f.failing[id] {
		return nil, appErrors.ErrUpstreamUnavailable
	}
	return &upstream.Blob{Data: []byte("survey " + params.Get("format"))}, nil
}

type recordingDispatcher struct {
	queued []jobs.Job[ExportTask]
	err    error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job[ExportTask]) error {
	if d.err != nil {
		return d.err
	}
	d.queued = append(d.queued, job)
	return nil
}

type exportFixture struct {
	store   *memoryJobStore
	files   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	surveys *fakeSurveyExporter
	queue   *recordingDispatcher
	service *ExportService
	worker  *ExportWorker
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &exportFixture{
		store:   newMemoryJobStore(),
		files:   files,
		signer:  storage.NewSignedURLSigner("secret", time.Hour),
		surveys: &fakeSurveyExporter{failing: map[int64]bool{}},
		queue:   &recordingDispatcher{},
	}
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	qc, _ := newTestQueryCache()
	reports := NewAttendanceReportService(&fakeAttendanceSource{records: sampleAttendance()}, qc, "az", testLimits, nil)
	f.service = NewExportService(reports, f.store, files, f.signer, nil, cfg, nil)
	f.service.UseQueue(f.queue)
	f.worker = NewExportWorker(f.store, f.surveys, files, f.signer, nil, cfg, nil)
	return f
}

func TestAttendanceExportRendersAllRows(t *testing.T) {
	f := newExportFixture(t)

	file, err := f.service.AttendanceExport(context.Background(), superAdmin, dto.AttendanceReportQuery{}, url.Values{"per_page": {"1"}}, export.FormatCSV)
	require.NoError(t, err)
	assert.Regexp(t, `^attendance-report-\d{2}-\d{2}-\d{4}\.csv$`, file.Filename)
	assert.Equal(t, export.FormatCSV.ContentType(), file.ContentType)
	lines := bytes.Split(bytes.TrimSpace(file.Data), []byte("\n"))
	assert.Len(t, lines, 4)
}

func TestAttendanceExportRejectsUnknownFormat(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.service.AttendanceExport(context.Background(), superAdmin, dto.AttendanceReportQuery{}, url.Values{}, export.Format("docx"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateJobQueuesWithRequesterToken(t *testing.T) {
	f := newExportFixture(t)
	admin := superAdmin
	admin.Token = "tok"

	resp, err := f.service.CreateJob(context.Background(), admin, dto.BulkExportRequest{SurveyIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, f.queue.queued, 1)
	assert.Equal(t, "tok", f.queue.queued[0].Payload.Token)

	stored, err := f.store.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", stored.Params.Format)
}

func TestCreateJobChecksRoleAndPayload(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.service.CreateJob(context.Background(), schoolAdmin, dto.BulkExportRequest{SurveyIDs: []int64{1}})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.service.CreateJob(context.Background(), superAdmin, dto.BulkExportRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateJobMarksFailedWhenQueueRejects(t *testing.T) {
	f := newExportFixture(t)
	f.queue.err = errors.New("queue stopped")

	_, err := f.service.CreateJob(context.Background(), superAdmin, dto.BulkExportRequest{SurveyIDs: []int64{1}})
	require.Error(t, err)
	for _, job := range f.store.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportWorkerBundlesSuccessfulSurveys(t *testing.T) {
	f := newExportFixture(t)
	f.surveys.failing[2] = true
	admin := superAdmin
	admin.Token = "tok"
	resp, err := f.service.CreateJob(context.Background(), admin, dto.BulkExportRequest{SurveyIDs: []int64{1, 2, 3}, Format: "csv"})
	require.NoError(t, err)

	require.NoError(t, f.worker.Handle(context.Background(), f.queue.queued[0]))
	assert.Equal(t, []string{"tok", "tok", "tok"}, f.surveys.tokens)

	status, err := f.service.GetStatus(context.Background(), admin, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 2, status.Succeeded)
	assert.Equal(t, 1, status.Failed)
	require.NotNil(t, status.ResultURL)
	assert.Contains(t, *status.ResultURL, "/api/v1/export/")

	download, err := f.service.ResolveDownload(context.Background(), extractToken(*status.ResultURL))
	require.NoError(t, err)
	defer download.File.Close()
	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "survey-1-results.csv", zr.File[0].Name)
	assert.Equal(t, "survey-3-results.csv", zr.File[1].Name)
}

func TestExportWorkerFailsWhenNothingExported(t *testing.T) {
	f := newExportFixture(t)
	f.surveys.failing[1] = true
	admin := superAdmin
	admin.Token = "tok"
	resp, err := f.service.CreateJob(context.Background(), admin, dto.BulkExportRequest{SurveyIDs: []int64{1}})
	require.NoError(t, err)

	require.NoError(t, f.worker.Handle(context.Background(), f.queue.queued[0]))
	status, err := f.service.GetStatus(context.Background(), admin, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, status.Status)
	assert.Nil(t, status.ResultURL)
	require.NotNil(t, status.Error)
}

func TestRecoveredJobsWithoutTokenFail(t *testing.T) {
	f := newExportFixture(t)
	job := &models.ExportJob{Status: models.ExportStatusQueued, Params: models.ExportJobParams{SurveyIDs: []int64{1}}, CreatedBy: superAdmin.UserID}
	require.NoError(t, f.store.Create(context.Background(), job))

	f.service.RecoverPendingJobs(context.Background())
	require.Len(t, f.queue.queued, 1)
	require.NoError(t, f.worker.Handle(context.Background(), f.queue.queued[0]))

	stored, _ := f.store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
	assert.Empty(t, f.surveys.tokens)
}

func TestGetStatusHidesOtherUsersJobs(t *testing.T) {
	f := newExportFixture(t)
	regional := models.Principal{UserID: "r1", Role: models.RoleRegionAdmin}
	resp, err := f.service.CreateJob(context.Background(), regional, dto.BulkExportRequest{SurveyIDs: []int64{1}})
	require.NoError(t, err)

	other := models.Principal{UserID: "r2", Role: models.RoleRegionAdmin}
	_, err = f.service.GetStatus(context.Background(), other, resp.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.service.GetStatus(context.Background(), superAdmin, resp.ID)
	assert.NoError(t, err)
}

func TestResolveDownloadRejectsForgedToken(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.service.ResolveDownload(context.Background(), "job.123.cGF0aA.bad")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
