package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

var exportJobRowColumns = []string{"id", "kind", "params", "status", "progress", "succeeded", "failed", "result_url", "created_by", "created_at", "finished_at", "error_message"}

func newExportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestExportJobRepositoryCreateAndGet(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_jobs")).
		WithArgs(sqlmock.AnyArg(), "survey_results", sqlmock.AnyArg(), "QUEUED", 0, 0, 0, nil, "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{
		Kind:      models.ExportKindSurveyResults,
		Params:    models.ExportJobParams{SurveyIDs: []int64{4, 7}},
		CreatedBy: "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow(job.ID, "survey_results", `{"survey_ids":[4,7]}`, "QUEUED", 0, 0, 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 7}, fetched.Params.SurveyIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryGetMissing(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(exportJobRowColumns))

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportJobRepositoryUpdate(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	now := time.Now()
	status := models.ExportStatusFinished
	succeeded, failed := 3, 1
	result := "/api/v1/export/token"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, succeeded = $2, failed = $3, result_url = $4, finished_at = $5 WHERE id = $6")).
		WithArgs(status, succeeded, failed, result, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{
		Status:     &status,
		Succeeded:  &succeeded,
		Failed:     &failed,
		ResultURL:  &result,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdateWithoutChanges(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateExportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListQueued(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow("job-1", "survey_results", `{"survey_ids":[1]}`, "QUEUED", 0, 0, 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListFinishedBefore(t *testing.T) {
	db, mock := newExportRepoMock(t)
	repo := NewExportJobRepository(db)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow("job-1", "survey_results", `{"survey_ids":[1]}`, "FINISHED", 100, 1, 0, "/api/v1/export/t", "user-1", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
