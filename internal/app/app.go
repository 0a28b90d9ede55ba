// Package app assembles the gateway's services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/handler"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/repository"
	"github.com/noah-isme/atis-gateway/internal/service"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	"github.com/noah-isme/atis-gateway/pkg/cache"
	"github.com/noah-isme/atis-gateway/pkg/config"
	"github.com/noah-isme/atis-gateway/pkg/database"
	"github.com/noah-isme/atis-gateway/pkg/jobs"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
	"github.com/noah-isme/atis-gateway/pkg/logger"
	"github.com/noah-isme/atis-gateway/pkg/storage"
)

// Upstream collection paths of the list screens. Writes use
// service.DefaultMutationTargets, which names the same collections.
const (
	pathStudents      = "students"
	pathTasks         = "tasks"
	pathAssignedTasks = "tasks/assigned"
	pathLinks         = "link-shares"
	pathAssessments   = "assessment-entries"
)

// Options selects optional parts. The CLI runs without the export job store.
type Options struct {
	WithExports bool
}

// App holds every wired service.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Client  *upstream.Client
	Cache   *service.QueryCache
	Auth    *service.AuthService

	Institutions  *service.ListService[models.Institution]
	Surveys       *service.ListService[models.Survey]
	Students      *service.ListService[models.Student]
	Tasks         *service.ListService[models.Task]
	AssignedTasks *service.ListService[models.Task]
	Links         *service.ListService[models.LinkResource]
	Assessments   *service.ListService[models.AssessmentResult]

	Attendance        *service.AttendanceReportService
	AssessmentReports *service.AssessmentReportService
	SurveyResults     *service.SurveyResultsService
	Mutations         *service.MutationService
	Exports           *service.ExportService

	probes      map[string]handler.Probe
	exportQueue *jobs.Queue[service.ExportTask]
	closers     []func() error
}

// New builds the application. Callers must Close it.
func New(ctx context.Context, cfg *config.Config, logr *zap.Logger, opts Options) (*App, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logr,
		Metrics: service.NewMetricsService(),
		probes:  make(map[string]handler.Probe),
	}

	cacheRepo, err := a.cacheRepository(ctx)
	if err != nil {
		return nil, err
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.Metrics, service.CacheOptions{
		Enabled:    cfg.Cache.Enabled,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Namespace:  cfg.Cache.Namespace,
		Cooldown:   cfg.Cache.Cooldown,
	}, logr)
	a.Cache = service.NewQueryCache(cacheSvc, a.Metrics, logr)
	a.Auth = service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	a.Client = upstream.New(upstream.Options{
		BaseURL:      cfg.Upstream.BaseURL,
		Timeout:      cfg.Upstream.Timeout,
		MaxRetries:   cfg.Upstream.MaxRetries,
		RetryBackoff: cfg.Upstream.RetryBackoff,
		Logger:       logger.Fetch(logr, cfg.Log.DebugFetch),
		Metrics:      a.Metrics,
	})

	limits := listquery.Limits{DefaultPerPage: cfg.Lists.DefaultPerPage, MaxPerPage: cfg.Lists.MaxPerPage}
	institutions := repository.NewInstitutionRepository(a.Client)
	surveys := repository.NewSurveyRepository(a.Client)

	a.Institutions = service.NewListService(service.InstitutionListDescriptor(institutions, institutions, a.Cache, logr), a.Cache, cfg.Locale, limits, logr)
	a.Surveys = service.NewListService(service.SurveyListDescriptor(surveys), a.Cache, cfg.Locale, limits, logr)
	a.Students = service.NewListService(service.StudentListDescriptor(repository.NewListRepository[models.Student](a.Client, pathStudents)), a.Cache, cfg.Locale, limits, logr)
	a.Tasks = service.NewListService(service.TaskListDescriptor(repository.NewListRepository[models.Task](a.Client, pathTasks)), a.Cache, cfg.Locale, limits, logr)
	a.AssignedTasks = service.NewListService(service.AssignedTaskListDescriptor(repository.NewListRepository[models.Task](a.Client, pathAssignedTasks)), a.Cache, cfg.Locale, limits, logr)
	a.Links = service.NewListService(service.LinkListDescriptor(repository.NewListRepository[models.LinkResource](a.Client, pathLinks)), a.Cache, cfg.Locale, limits, logr)
	assessments := repository.NewListRepository[models.AssessmentResult](a.Client, pathAssessments)
	a.Assessments = service.NewListService(service.AssessmentListDescriptor(assessments), a.Cache, cfg.Locale, limits, logr)

	a.Attendance = service.NewAttendanceReportService(repository.NewAttendanceRepository(a.Client), a.Cache, cfg.Locale, limits, logr)
	a.AssessmentReports = service.NewAssessmentReportService(assessments, a.Cache, cfg.Locale, limits)
	a.SurveyResults = service.NewSurveyResultsService(surveys, a.Cache, logr)
	a.Mutations = service.NewMutationService(repository.NewWriteRepository(a.Client), a.Cache, nil, validator.New(), logr)

	exportCfg := service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.ResultTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		BulkDelay:       cfg.Exports.BulkDelay,
	}
	if !opts.WithExports || !cfg.Exports.Enabled {
		a.Exports = service.NewExportService(a.Attendance, nil, nil, nil, a.Metrics, exportCfg, logr)
		return a, nil
	}
	if err := a.wireBulkExports(ctx, surveys, exportCfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) cacheRepository(ctx context.Context) (service.CacheRepository, error) {
	cfg := a.Config
	if !cfg.Cache.Enabled || cfg.Cache.Backend != config.CacheBackendRedis {
		return repository.NewMemoryCacheRepository(), nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	repo := repository.NewCacheRepository(client, a.Logger)
	a.probes["redis"] = repo.Ping
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

func (a *App) wireBulkExports(ctx context.Context, surveys *repository.SurveyRepository, exportCfg service.ExportConfig) error {
	cfg := a.Config
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate export store: %w", err)
	}
	return a.useExportStore(db, surveys, exportCfg)
}

func (a *App) useExportStore(db *sqlx.DB, surveys *repository.SurveyRepository, exportCfg service.ExportConfig) error {
	cfg := a.Config
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	store := repository.NewExportJobRepository(db)
	a.probes["database"] = store.Ping

	worker := service.NewExportWorker(store, surveys, files, signer, a.Metrics, exportCfg, a.Logger)
	a.exportQueue = jobs.NewQueue("survey-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     a.Logger,
	})
	a.exportQueue.OnExhausted = worker.Exhausted

	a.Exports = service.NewExportService(a.Attendance, store, files, signer, a.Metrics, exportCfg, a.Logger)
	a.Exports.UseQueue(a.exportQueue)
	return nil
}

// BulkExports reports whether the export job store is wired.
func (a *App) BulkExports() bool {
	return a.exportQueue != nil
}

// Start launches background work: the export queue, recovery of jobs left
// queued by a previous process and the cleanup loop.
func (a *App) Start(ctx context.Context) {
	if a.exportQueue == nil {
		return
	}
	a.exportQueue.Start(ctx)
	a.Exports.RecoverPendingJobs(ctx)
	a.Exports.StartCleanup(ctx)
}

// Probes returns the readiness checks of the wired dependencies.
func (a *App) Probes() map[string]handler.Probe {
	return a.probes
}

// Close stops background work and releases connections.
func (a *App) Close() error {
	if a.exportQueue != nil {
		a.exportQueue.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
