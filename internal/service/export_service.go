package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/repository"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/jobs"
	"github.com/noah-isme/atis-gateway/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type surveyExporter interface {
	Export(ctx context.Context, surveyID int64, params url.Values) (*upstream.Blob, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job[ExportTask]) error
}

// ExportTask is the queue payload of a bulk export. Token is kept in memory
// only so the worker can call upstream on the requester's behalf.
type ExportTask struct {
	JobID string
	Token string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	// BulkDelay separates consecutive upstream downloads of one bulk export.
	BulkDelay time.Duration
}

func (c ExportConfig) withDefaults() ExportConfig {
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.APIPrefix == "" {
		c.APIPrefix = "/api/v1"
	}
	return c
}

// ExportFile is a rendered synchronous export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportDownload is a resolved signed download.
type ExportDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

var attendanceExportColumns = []export.Column{
	{Key: "start_date", Title: "Start"},
	{Key: "end_date", Title: "End"},
	{Key: "school_name", Title: "School"},
	{Key: "class_name", Title: "Class"},
	{Key: "total_start", Title: "Students at start"},
	{Key: "total_end", Title: "Students at end"},
	{Key: "attendance_rate", Title: "Attendance (%)"},
	{Key: "count", Title: "Records"},
}

// ExportService renders report downloads and manages bulk export jobs.
type ExportService struct {
	reports   *AttendanceReportService
	repo      exportJobStore
	storage   fileStorage
	signer    *storage.SignedURLSigner
	queue     exportDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs the service. The queue is attached later with
// UseQueue because the worker that drains it is built from the same parts.
func NewExportService(reports *AttendanceReportService, repo exportJobStore, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reports:   reports,
		repo:      repo,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// UseQueue attaches the dispatcher bulk jobs are sent to.
func (s *ExportService) UseQueue(queue exportDispatcher) {
	s.queue = queue
}

// AttendanceExport renders every row of the attendance report in format f.
func (s *ExportService) AttendanceExport(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values, f export.Format) (*ExportFile, error) {
	renderer, err := export.RendererFor(f)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rows, period, err := s.reports.Rows(ctx, p, q, raw)
	if err != nil {
		return nil, err
	}

	data := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, map[string]string{
			"start_date":      r.StartDate,
			"end_date":        r.EndDate,
			"school_name":     r.SchoolName,
			"class_name":      r.ClassName,
			"total_start":     strconv.Itoa(r.TotalStart),
			"total_end":       strconv.Itoa(r.TotalEnd),
			"attendance_rate": strconv.FormatFloat(r.AttendanceRate, 'f', -1, 64),
			"count":           strconv.Itoa(r.Count),
		})
	}
	payload, err := renderer.Render(export.Dataset{
		Title:   fmt.Sprintf("Attendance report (%s)", period),
		Columns: attendanceExportColumns,
		Rows:    data,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    export.Filename("attendance-report", s.now(), f),
		ContentType: f.ContentType(),
		Data:        payload,
	}, nil
}

// CreateJob persists a bulk survey export and queues it.
func (s *ExportService) CreateJob(ctx context.Context, p models.Principal, req dto.BulkExportRequest) (*dto.ExportJobResponse, error) {
	if !models.CapabilitiesFor(p.Role, models.ResourceExports).CanCreate {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}
	format := req.Format
	if format == "" {
		format = string(export.FormatXLSX)
	}

	job := &models.ExportJob{
		Kind:      models.ExportKindSurveyResults,
		Params:    models.ExportJobParams{SurveyIDs: req.SurveyIDs, Format: format},
		Status:    models.ExportStatusQueued,
		CreatedBy: p.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job[ExportTask]{ID: job.ID, Payload: ExportTask{JobID: job.ID, Token: p.Token}}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := s.now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &now})
		s.metrics.IncExportJob("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	s.metrics.IncExportJob("queued")
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: 0, Total: len(req.SurveyIDs)}, nil
}

// GetStatus reports a job's progress. Only its creator and superadmins may see it.
func (s *ExportService) GetStatus(ctx context.Context, p models.Principal, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role != models.RoleSuperAdmin && job.CreatedBy != p.UserID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ExportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Total:      len(job.Params.SurveyIDs),
		Succeeded:  job.Succeeded,
		Failed:     job.Failed,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a signed token and opens the archive it grants.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	grant, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, grant.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished || job.ResultURL == nil || extractToken(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{File: file, Filename: filepath.Base(grant.Path), ExpiresAt: grant.ExpiresAt}, nil
}

// RecoverPendingJobs requeues jobs left QUEUED by a previous process. Their
// requester tokens are gone, so the worker fails them with a resubmit hint.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job[ExportTask]{ID: job.ID, Payload: ExportTask{JobID: job.ID}}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup purges expired archives every CleanupInterval until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes archives of jobs finished before now-ResultTTL,
// then sweeps stray files of the same age.
func (s *ExportService) CleanupExpired(ctx context.Context) {
	const batch = 100
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	finished, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
	if err != nil {
		s.logger.Warn("export cleanup listing failed", zap.Error(err))
		return
	}
	for _, job := range finished {
		if job.ResultURL == nil {
			continue
		}
		grant, err := s.signer.Parse(extractToken(*job.ResultURL), true)
		if err != nil {
			continue
		}
		if err := s.storage.Delete(grant.Path); err != nil {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

func extractToken(resultURL string) string {
	if i := strings.LastIndex(resultURL, "/"); i >= 0 {
		return resultURL[i+1:]
	}
	return resultURL
}

// ExportWorker drains the bulk export queue.
type ExportWorker struct {
	repo    exportJobStore
	surveys surveyExporter
	storage fileStorage
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, surveys surveyExporter, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{
		repo:    repo,
		surveys: surveys,
		storage: files,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

// Handle downloads every survey of the job one after another, bundles the
// files that succeeded into a zip archive and publishes a signed link.
// A survey that fails is counted and skipped. Returning an error asks the
// queue to retry the whole job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job[ExportTask]) error {
	record, err := w.repo.GetByID(ctx, job.Payload.JobID)
	if err != nil {
		return err
	}
	if record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return nil
	}
	if job.Payload.Token == "" {
		return w.fail(ctx, record.ID, "requester credentials are no longer available; submit the export again")
	}

	processing := models.ExportStatusProcessing
	zero := 0
	if err := w.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &zero}); err != nil {
		return err
	}

	ctx = upstream.WithToken(ctx, job.Payload.Token)
	format := record.Params.Format
	if format == "" {
		format = string(export.FormatXLSX)
	}

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	succeeded, failed := 0, 0
	total := len(record.Params.SurveyIDs)
	for i, surveyID := range record.Params.SurveyIDs {
		if i > 0 && w.cfg.BulkDelay > 0 {
			if err := sleepCtx(ctx, w.cfg.BulkDelay); err != nil {
				return w.requeue(record.ID, err)
			}
		}
		blob, err := w.surveys.Export(ctx, surveyID, url.Values{"format": {format}})
		if err == nil {
			err = addToArchive(zw, surveyFilename(blob, surveyID, format), blob.Data)
		}
		if err != nil {
			if ctx.Err() != nil {
				return w.requeue(record.ID, ctx.Err())
			}
			failed++
			w.logger.Warn("survey export failed", zap.String("job_id", record.ID), zap.Int64("survey_id", surveyID), zap.Error(err))
		} else {
			succeeded++
		}

		progress := (i + 1) * 100 / total
		if err := w.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{Progress: &progress, Succeeded: &succeeded, Failed: &failed}); err != nil {
			w.logger.Warn("failed to record export progress", zap.String("job_id", record.ID), zap.Error(err))
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	if succeeded == 0 {
		return w.fail(ctx, record.ID, fmt.Sprintf("none of the %d surveys could be exported", total))
	}

	now := w.now().UTC()
	relPath, err := w.storage.Save(fmt.Sprintf("%s/survey-results-%s.zip", record.ID, now.Format("02-01-2006")), archive.Bytes())
	if err != nil {
		return err
	}
	token, _, err := w.signer.Generate(record.ID, relPath)
	if err != nil {
		return err
	}
	resultURL := fmt.Sprintf("%s/export/%s", strings.TrimRight(w.cfg.APIPrefix, "/"), token)
	finished := models.ExportStatusFinished
	complete := 100
	noError := ""
	if err := w.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &complete,
		Succeeded:    &succeeded,
		Failed:       &failed,
		ResultURL:    &resultURL,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.metrics.IncExportJob("finished")
	w.logger.Info("bulk export finished", zap.String("job_id", record.ID), zap.Int("succeeded", succeeded), zap.Int("failed", failed))
	return nil
}

// Exhausted marks a job failed once the queue gives up on it.
func (w *ExportWorker) Exhausted(job jobs.Job[ExportTask], err error) {
	if ferr := w.fail(context.Background(), job.Payload.JobID, err.Error()); ferr != nil {
		w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.Payload.JobID), zap.Error(ferr))
	}
}

func (w *ExportWorker) fail(ctx context.Context, id, msg string) error {
	failed := models.ExportStatusFailed
	complete := 100
	now := w.now().UTC()
	if err := w.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &complete,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.metrics.IncExportJob("failed")
	return nil
}

// requeue puts an interrupted job back to QUEUED so a restart can recover it.
func (w *ExportWorker) requeue(id string, cause error) error {
	queued := models.ExportStatusQueued
	zero := 0
	if err := w.repo.Update(context.Background(), id, repository.UpdateExportJobParams{Status: &queued, Progress: &zero}); err != nil {
		w.logger.Warn("failed to requeue interrupted export", zap.String("job_id", id), zap.Error(err))
	}
	return cause
}

func surveyFilename(blob *upstream.Blob, surveyID int64, format string) string {
	if blob.Filename != "" {
		return fmt.Sprintf("%d-%s", surveyID, filepath.Base(blob.Filename))
	}
	return fmt.Sprintf("survey-%d-results.%s", surveyID, format)
}

func addToArchive(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
