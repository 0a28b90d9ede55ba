package service

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/bucket"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

type fakeAttendanceSource struct {
	records    []models.AttendanceRecord
	err        error
	statsErr   error
	pageSize   int
	listCalls  []url.Values
	statsCalls []url.Values
}

func (f *fakeAttendanceSource) List(_ context.Context, params url.Values) (listquery.Envelope[models.AttendanceRecord], error) {
	f.listCalls = append(f.listCalls, params)
	if f.err != nil {
		return listquery.Envelope[models.AttendanceRecord]{}, f.err
	}
	if f.pageSize > 0 {
		return pageOf(f.records, params, f.pageSize), nil
	}
	return listquery.Envelope[models.AttendanceRecord]{Data: f.records}, nil
}

func (f *fakeAttendanceSource) Stats(_ context.Context, params url.Values) (*models.AttendanceStats, error) {
	f.statsCalls = append(f.statsCalls, params)
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &models.AttendanceStats{TotalStudents: 62, AverageAttendance: 93.5, TrendDirection: "stable", TotalDays: 2, TotalRecords: 2}, nil
}

// pageOf serves one upstream page of all, numbered by the page param.
func pageOf[T any](all []T, params url.Values, size int) listquery.Envelope[T] {
	page, err := strconv.Atoi(params.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	last := (len(all) + size - 1) / size
	if last < 1 {
		last = 1
	}
	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))
	return listquery.Envelope[T]{
		Data:      all[start:end],
		Meta:      listquery.ServerPageMeta{CurrentPage: page, LastPage: last, PerPage: size, Total: len(all)},
		Paginated: true,
	}
}

func sameWeekAttendance(n int) []models.AttendanceRecord {
	records := make([]models.AttendanceRecord, n)
	for i := range records {
		records[i] = models.AttendanceRecord{ID: int64(i + 1), Date: "2024-01-03", SchoolName: "School 5", ClassName: "5A", StartCount: 10, EndCount: 9, AttendanceRate: 90}
	}
	return records
}

func sampleAttendance() []models.AttendanceRecord {
	return []models.AttendanceRecord{
		{ID: 1, Date: "2024-01-01", SchoolName: "School 5", ClassName: "5A", StartCount: 30, EndCount: 28, AttendanceRate: 93},
		{ID: 2, Date: "2024-01-03", SchoolName: "School 5", ClassName: "5B", StartCount: 32, EndCount: 30, AttendanceRate: 94},
		{ID: 3, Date: "2024-01-09", SchoolName: "School 5", ClassName: "5A", StartCount: 20, EndCount: 10, AttendanceRate: 0},
		{ID: 4, Date: "not-a-date", SchoolName: "School 5", ClassName: "Ç1", StartCount: 1, EndCount: 1, AttendanceRate: 100},
	}
}

func TestAttendanceRowsWeeklyAggregation(t *testing.T) {
	rows, dropped := AttendanceRows(sampleAttendance(), bucket.Weekly)

	assert.Equal(t, 1, dropped)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-08", rows[0].Key)
	assert.Equal(t, float64(50), rows[0].AttendanceRate)

	week := rows[1]
	assert.Equal(t, "2024-01-01", week.Key)
	assert.Equal(t, "2024-01-07", week.EndDate)
	assert.Equal(t, 62, week.TotalStart)
	assert.Equal(t, 58, week.TotalEnd)
	assert.Equal(t, float64(94), week.AttendanceRate)
	assert.Equal(t, 2, week.Count)
}

func TestAttendanceRowsDailyKeepsOneRowPerRecord(t *testing.T) {
	rows, dropped := AttendanceRows(sampleAttendance(), bucket.Daily)

	assert.Equal(t, 1, dropped)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-01-09", rows[0].StartDate)
	assert.Equal(t, "5A", rows[0].ClassName)
	assert.Equal(t, "2024-01-01", rows[2].StartDate)
}

func TestAttendanceRowsMonthly(t *testing.T) {
	rows, _ := AttendanceRows(sampleAttendance(), bucket.Monthly)

	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01", rows[0].Key)
	assert.Equal(t, "2024-01-31", rows[0].EndDate)
	assert.Equal(t, 3, rows[0].Count)
	assert.Equal(t, 82, rows[0].TotalStart)
}

func TestAttendanceReportScopesSchoolStaff(t *testing.T) {
	src := &fakeAttendanceSource{records: sampleAttendance()}
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(src, qc, "az", testLimits, nil)

	raw := url.Values{"period": {"weekly"}, "school_id": {"7"}, "start_date": {"2024-01-01"}}
	report, _, err := svc.Report(context.Background(), schoolAdmin, dto.AttendanceReportQuery{Period: "weekly", SchoolID: "7", StartDate: "2024-01-01"}, raw)
	require.NoError(t, err)

	require.Len(t, src.listCalls, 1)
	assert.Equal(t, "42", src.listCalls[0].Get("school_id"))
	assert.Equal(t, "2024-01-01", src.listCalls[0].Get("start_date"))
	assert.Equal(t, "500", src.listCalls[0].Get("per_page"))
	assert.Equal(t, listquery.StateReady, report.State)
	assert.Equal(t, []string{"5A", "5B", "Ç1"}, report.Classes)
	assert.Equal(t, "stable", report.Stats.TrendDirection)
	assert.Equal(t, 2, report.Pagination.Total)
}

func TestAttendanceReportReadsEveryUpstreamPage(t *testing.T) {
	src := &fakeAttendanceSource{records: sameWeekAttendance(600), pageSize: 500}
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(src, qc, "az", testLimits, nil)

	report, _, err := svc.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{Period: "weekly"}, url.Values{"period": {"weekly"}})
	require.NoError(t, err)

	require.Len(t, src.listCalls, 2)
	assert.Equal(t, "1", src.listCalls[0].Get("page"))
	assert.Equal(t, "2", src.listCalls[1].Get("page"))
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 600, report.Rows[0].Count)
	assert.Equal(t, 6000, report.Rows[0].TotalStart)
	assert.False(t, report.Truncated)
}

func TestAttendanceReportFlagsTruncatedRange(t *testing.T) {
	src := &fakeAttendanceSource{records: sameWeekAttendance(reportMaxPages + 5), pageSize: 1}
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(src, qc, "az", testLimits, nil)

	report, _, err := svc.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{Period: "weekly"}, url.Values{"period": {"weekly"}})
	require.NoError(t, err)

	assert.Len(t, src.listCalls, reportMaxPages)
	assert.True(t, report.Truncated)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, reportMaxPages, report.Rows[0].Count)
}

func TestAttendanceStatsScopedBySchoolAndDates(t *testing.T) {
	src := &fakeAttendanceSource{records: sampleAttendance()}
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(src, qc, "az", testLimits, nil)

	raw := url.Values{"class_name": {"5A"}, "start_date": {"2024-01-01"}, "end_date": {"2024-01-31"}}
	_, _, err := svc.Report(context.Background(), schoolAdmin, dto.AttendanceReportQuery{ClassName: "5A", StartDate: "2024-01-01", EndDate: "2024-01-31"}, raw)
	require.NoError(t, err)

	require.Len(t, src.statsCalls, 1)
	stats := src.statsCalls[0]
	assert.Equal(t, "42", stats.Get("school_id"))
	assert.Equal(t, "2024-01-01", stats.Get("start_date"))
	assert.Equal(t, "2024-01-31", stats.Get("end_date"))
	assert.False(t, stats.Has("class_name"))
	assert.False(t, stats.Has("per_page"))
	assert.False(t, stats.Has("page"))
	assert.Equal(t, "5A", src.listCalls[0].Get("class_name"))
}

func TestAttendanceReportEmptyAndFailed(t *testing.T) {
	qc, _ := newTestQueryCache()
	empty := NewAttendanceReportService(&fakeAttendanceSource{}, qc, "az", testLimits, nil)

	report, _, err := empty.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{}, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, listquery.StateEmpty, report.State)

	qc2, _ := newTestQueryCache()
	failing := NewAttendanceReportService(&fakeAttendanceSource{err: appErrors.ErrUpstreamUnavailable}, qc2, "az", testLimits, nil)
	report, _, err = failing.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{}, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, listquery.StateError, report.State)
	assert.True(t, report.Retryable)
}

func TestAttendanceReportStatsFailureIsNotFatal(t *testing.T) {
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(&fakeAttendanceSource{records: sampleAttendance(), statsErr: appErrors.ErrUpstreamUnavailable}, qc, "az", testLimits, nil)

	report, _, err := svc.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{Period: "monthly"}, url.Values{"period": {"monthly"}})
	require.NoError(t, err)
	assert.Equal(t, listquery.StateReady, report.State)
	assert.Nil(t, report.Stats)
}

func TestAttendanceReportRejectsInvalidQuery(t *testing.T) {
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(&fakeAttendanceSource{}, qc, "az", testLimits, nil)

	_, _, err := svc.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{Period: "yearly"}, url.Values{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceReportSortsRows(t *testing.T) {
	qc, _ := newTestQueryCache()
	svc := NewAttendanceReportService(&fakeAttendanceSource{records: sampleAttendance()}, qc, "az", listquery.Limits{DefaultPerPage: 10, MaxPerPage: 10}, nil)

	report, _, err := svc.Report(context.Background(), superAdmin, dto.AttendanceReportQuery{}, url.Values{"sort": {"attendance_rate"}, "direction": {"asc"}})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, []float64{50, 93, 94}, []float64{report.Rows[0].AttendanceRate, report.Rows[1].AttendanceRate, report.Rows[2].AttendanceRate})
}

func TestAssessmentRowsAverageScoredResults(t *testing.T) {
	score := func(f float64) *float64 { return &f }
	rows, dropped := AssessmentRows([]models.AssessmentResult{
		{ID: 1, AssessmentDate: "2024-02-05", Score: score(80), StudentCount: 20},
		{ID: 2, AssessmentDate: "2024-02-06", Score: score(75.5), StudentCount: 25},
		{ID: 3, AssessmentDate: "2024-02-07", Score: nil, StudentCount: 10},
		{ID: 4, AssessmentDate: "2024-03-01", Score: nil, StudentCount: 5},
		{ID: 5, AssessmentDate: "", StudentCount: 5},
	}, bucket.Monthly)

	assert.Equal(t, 1, dropped)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].AverageScore)
	require.NotNil(t, rows[1].AverageScore)
	assert.Equal(t, 77.8, *rows[1].AverageScore)
	assert.Equal(t, 55, rows[1].StudentCount)
}

func TestAssessmentReportForbiddenForUnknownRole(t *testing.T) {
	qc, _ := newTestQueryCache()
	svc := NewAssessmentReportService(&fakeLister[models.AssessmentResult]{}, qc, "az", testLimits)

	report, _, err := svc.Report(context.Background(), models.Principal{Role: "guest"}, dto.AssessmentReportQuery{}, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, listquery.StateForbidden, report.State)
}

func TestAssessmentReportReadsEveryUpstreamPage(t *testing.T) {
	score := 70.0
	results := make([]models.AssessmentResult, 600)
	for i := range results {
		results[i] = models.AssessmentResult{ID: int64(i + 1), AssessmentDate: "2024-02-05", Score: &score, StudentCount: 2}
	}
	src := &fakeLister[models.AssessmentResult]{respond: func(params url.Values) (listquery.Envelope[models.AssessmentResult], error) {
		return pageOf(results, params, 500), nil
	}}
	qc, _ := newTestQueryCache()
	svc := NewAssessmentReportService(src, qc, "az", testLimits)

	report, _, err := svc.Report(context.Background(), superAdmin, dto.AssessmentReportQuery{Period: "monthly"}, url.Values{"period": {"monthly"}})
	require.NoError(t, err)

	assert.Len(t, src.calls, 2)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 600, report.Rows[0].Count)
	assert.Equal(t, 1200, report.Rows[0].StudentCount)
	assert.False(t, report.Truncated)
}
