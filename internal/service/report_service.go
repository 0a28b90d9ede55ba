package service

import (
	"context"
	"maps"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/text/collate"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/bucket"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

const (
	// reportFetchSize is the upstream page size used while pulling a report range.
	reportFetchSize = 500
	// reportMaxPages caps how many upstream pages one report reads. Reports
	// over the cap are flagged Truncated.
	reportMaxPages = 40
)

// reportRecords is every record of a report range gathered page by page.
type reportRecords[T any] struct {
	records   []T
	hit       bool
	truncated bool
}

// fetchReportRecords reads pages 1..last_page of a report range. Every page
// goes through the query cache under its own key, so pages share invalidation
// with the resource.
func fetchReportRecords[T any](ctx context.Context, cache *QueryCache, resource, suffix string, scope listquery.Scope, params url.Values, list func(context.Context, url.Values) (listquery.Envelope[T], error)) (reportRecords[T], error) {
	out := reportRecords[T]{hit: true}
	for page := 1; ; page++ {
		pageParams := maps.Clone(params)
		if pageParams == nil {
			pageParams = url.Values{}
		}
		pageParams.Set(listquery.ParamPage, strconv.Itoa(page))
		pageParams.Set(listquery.ParamPerPage, strconv.Itoa(reportFetchSize))

		key := listquery.CacheKey(resource, scope, pageParams) + suffix
		env, hit, err := Fetch(ctx, cache, resource, key, 0, func(ctx context.Context) (listquery.Envelope[T], error) {
			return list(ctx, pageParams)
		})
		if err != nil {
			return out, err
		}
		out.hit = out.hit && hit
		out.records = append(out.records, env.Data...)

		if !env.Paginated || page >= env.Meta.LastPage || len(env.Data) == 0 {
			return out, nil
		}
		if page >= reportMaxPages {
			out.truncated = true
			return out, nil
		}
	}
}

type attendanceSource interface {
	List(ctx context.Context, params url.Values) (listquery.Envelope[models.AttendanceRecord], error)
	Stats(ctx context.Context, params url.Values) (*models.AttendanceStats, error)
}

var attendanceFilters = []listquery.FilterSpec{
	{Key: "start_date", Kind: listquery.KindDate},
	{Key: "end_date", Kind: listquery.KindDate},
	{Key: "school_id", Kind: listquery.KindInt},
	{Key: "class_name"},
}

var attendanceFields = listquery.FieldSet[dto.AttendanceRow]{
	"start_date":      func(r dto.AttendanceRow) listquery.Value { return dateValue(r.StartDate) },
	"school_name":     func(r dto.AttendanceRow) listquery.Value { return listquery.Text(r.SchoolName) },
	"class_name":      func(r dto.AttendanceRow) listquery.Value { return listquery.Text(r.ClassName) },
	"total_start":     func(r dto.AttendanceRow) listquery.Value { return listquery.Int(r.TotalStart) },
	"total_end":       func(r dto.AttendanceRow) listquery.Value { return listquery.Int(r.TotalEnd) },
	"attendance_rate": func(r dto.AttendanceRow) listquery.Value { return listquery.Number(r.AttendanceRate) },
	"count":           func(r dto.AttendanceRow) listquery.Value { return listquery.Int(r.Count) },
}

// AttendanceReportService builds the attendance report: records for a date
// range grouped by day, Monday-start week or calendar month.
type AttendanceReportService struct {
	source    attendanceSource
	cache     *QueryCache
	locale    string
	limits    listquery.Limits
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceReportService constructs the service.
func NewAttendanceReportService(source attendanceSource, cache *QueryCache, locale string, limits listquery.Limits, logger *zap.Logger) *AttendanceReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceReportService{
		source:    source,
		cache:     cache,
		locale:    locale,
		limits:    limits,
		validator: validator.New(),
		logger:    logger,
	}
}

// Report returns the report view. Invalid queries are the only Go error;
// upstream failures are reported through the view state.
func (s *AttendanceReportService) Report(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values) (*dto.AttendanceReport, bool, error) {
	built, err := s.build(ctx, p, q, raw)
	if err != nil {
		return nil, false, err
	}
	report := built.report
	if built.failure != nil {
		report.View = listquery.Failed[dto.AttendanceRow](built.failure, built.state, built.caps)
		return report, false, nil
	}

	st := built.state
	pagination := listquery.Reconcile(st.Page, nil, len(built.rows))
	if pagination.Clamped {
		st.SetPage(pagination.Page)
	}
	report.View = listquery.Ready(listquery.Paginate(built.rows, pagination.Page, pagination.PerPage), pagination, st, built.caps)
	return report, built.hit, nil
}

// Rows returns every report row in display order, unpaginated. Upstream and
// permission failures are returned as errors.
func (s *AttendanceReportService) Rows(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values) ([]dto.AttendanceRow, string, error) {
	built, err := s.build(ctx, p, q, raw)
	if err != nil {
		return nil, "", err
	}
	if built.failure != nil {
		return nil, "", built.failure
	}
	return built.rows, built.report.Period, nil
}

type attendanceBuild struct {
	report  *dto.AttendanceReport
	rows    []dto.AttendanceRow
	state   listquery.State
	caps    models.Capabilities
	hit     bool
	failure error
}

func (s *AttendanceReportService) build(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values) (attendanceBuild, error) {
	if err := s.validator.Struct(q); err != nil {
		return attendanceBuild{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	period, err := bucket.ParsePeriod(q.Period)
	if err != nil {
		return attendanceBuild{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	st := listquery.ParseState(raw, attendanceFilters, attendanceFields.Names(), s.limits)
	built := attendanceBuild{
		report: &dto.AttendanceReport{Period: string(period), Classes: []string{}},
		state:  st,
		caps:   models.CapabilitiesFor(p.Role, models.ResourceAttendance),
	}
	if !built.caps.CanView {
		built.failure = appErrors.ErrForbidden
		return built, nil
	}

	filterState := st
	filterState.Sort = listquery.SortSpec{}
	params := listquery.Serialize(attendanceFilters, filterState, listquery.SerializeOptions{
		Overrides: institutionBoundScope("school_id")(p),
	})

	resource := string(models.ResourceAttendance)
	fetched, err := fetchReportRecords(ctx, s.cache, resource, "", ScopeOf(p), params, s.source.List)
	if err != nil {
		built.failure = err
		return built, nil
	}
	built.hit = fetched.hit
	built.report.Truncated = fetched.truncated
	if fetched.truncated {
		s.logger.Warn("attendance report truncated", zap.Int("records", len(fetched.records)), zap.Int("max_pages", reportMaxPages))
	}

	// Stats are scoped by school and date range only.
	statsParams := maps.Clone(params)
	if statsParams == nil {
		statsParams = url.Values{}
	}
	statsParams.Del("class_name")
	statsParams.Del(listquery.ParamPage)
	statsParams.Del(listquery.ParamPerPage)
	stats, _, err := Fetch(ctx, s.cache, resource, listquery.CacheKey(resource, ScopeOf(p), statsParams)+"#stats", 0, func(ctx context.Context) (*models.AttendanceStats, error) {
		return s.source.Stats(ctx, statsParams)
	})
	if err != nil {
		s.logger.Warn("attendance stats unavailable", zap.Error(err))
	} else {
		built.report.Stats = stats
	}

	collator := listquery.NewCollator(s.locale)
	rows, dropped := AttendanceRows(fetched.records, period)
	built.report.Dropped = dropped
	built.report.Classes = distinctClasses(fetched.records, collator)
	if st.Sort.Active() {
		rows = listquery.SortRows(rows, st.Sort, attendanceFields, collator)
	}
	built.rows = rows
	return built, nil
}

// AttendanceRows turns records into report rows, newest first. The daily
// period keeps one row per record; weekly and monthly sum the head counts and
// average the per-record rates. Records with unreadable dates are dropped and counted.
func AttendanceRows(records []models.AttendanceRecord, period bucket.Period) ([]dto.AttendanceRow, int) {
	dateOf := func(r models.AttendanceRecord) (time.Time, bool) { return bucket.ParseDate(r.Date) }

	if period == bucket.Daily {
		type dated struct {
			day time.Time
			row dto.AttendanceRow
		}
		items := make([]dated, 0, len(records))
		dropped := 0
		for _, r := range records {
			day, ok := dateOf(r)
			if !ok {
				dropped++
				continue
			}
			key := bucket.KeyFor(day, bucket.Daily)
			items = append(items, dated{day: day, row: dto.AttendanceRow{
				Key:            key,
				StartDate:      key,
				EndDate:        key,
				SchoolName:     schoolName(r),
				ClassName:      r.ClassName,
				TotalStart:     r.StartCount,
				TotalEnd:       r.EndCount,
				AttendanceRate: math.Round(recordRate(r)),
				Count:          1,
			}})
		}
		slices.SortStableFunc(items, func(a, b dated) int { return b.day.Compare(a.day) })
		rows := make([]dto.AttendanceRow, len(items))
		for i, item := range items {
			rows[i] = item.row
		}
		return rows, dropped
	}

	grouped := bucket.GroupBy(records, dateOf, period)
	rows := make([]dto.AttendanceRow, 0, len(grouped.Groups))
	for _, g := range grouped.Groups {
		row := dto.AttendanceRow{
			Key:       g.Key,
			StartDate: g.Start.Format(listquery.DateLayout),
			EndDate:   g.End.Format(listquery.DateLayout),
			Count:     len(g.Items),
		}
		var rateSum float64
		for _, r := range g.Items {
			row.TotalStart += r.StartCount
			row.TotalEnd += r.EndCount
			rateSum += recordRate(r)
		}
		if row.Count > 0 {
			row.AttendanceRate = math.Round(rateSum / float64(row.Count))
		}
		rows = append(rows, row)
	}
	return rows, grouped.Dropped
}

// recordRate prefers the upstream rate and derives it from the head counts when missing.
func recordRate(r models.AttendanceRecord) float64 {
	if r.AttendanceRate > 0 || r.StartCount <= 0 {
		return r.AttendanceRate
	}
	return float64(r.EndCount) * 100 / float64(r.StartCount)
}

func schoolName(r models.AttendanceRecord) string {
	if r.SchoolName != "" {
		return r.SchoolName
	}
	if r.School != nil {
		return r.School.Name
	}
	return ""
}

func distinctClasses(records []models.AttendanceRecord, collator *collate.Collator) []string {
	seen := make(map[string]struct{}, len(records))
	classes := make([]string, 0)
	for _, r := range records {
		name := strings.TrimSpace(r.ClassName)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		classes = append(classes, name)
	}
	collator.SortStrings(classes)
	return classes
}

var assessmentReportFilters = []listquery.FilterSpec{
	{Key: "start_date", Kind: listquery.KindDate},
	{Key: "end_date", Kind: listquery.KindDate},
	{Key: "institution_id", Kind: listquery.KindInt},
	{Key: "assessment_type"},
}

var assessmentRowFields = listquery.FieldSet[dto.AssessmentRow]{
	"start_date":    func(r dto.AssessmentRow) listquery.Value { return dateValue(r.StartDate) },
	"average_score": func(r dto.AssessmentRow) listquery.Value { return listquery.OptionalNumber(r.AverageScore) },
	"student_count": func(r dto.AssessmentRow) listquery.Value { return listquery.Int(r.StudentCount) },
	"count":         func(r dto.AssessmentRow) listquery.Value { return listquery.Int(r.Count) },
}

// AssessmentReportService groups assessment results by period.
type AssessmentReportService struct {
	source    Lister[models.AssessmentResult]
	cache     *QueryCache
	locale    string
	limits    listquery.Limits
	validator *validator.Validate
}

// NewAssessmentReportService constructs the service.
func NewAssessmentReportService(source Lister[models.AssessmentResult], cache *QueryCache, locale string, limits listquery.Limits) *AssessmentReportService {
	return &AssessmentReportService{source: source, cache: cache, locale: locale, limits: limits, validator: validator.New()}
}

// Report returns the grouped assessment view.
func (s *AssessmentReportService) Report(ctx context.Context, p models.Principal, q dto.AssessmentReportQuery, raw url.Values) (*dto.AssessmentReport, bool, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	period, err := bucket.ParsePeriod(q.Period)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	st := listquery.ParseState(raw, assessmentReportFilters, assessmentRowFields.Names(), s.limits)
	caps := models.CapabilitiesFor(p.Role, models.ResourceAssessments)
	report := &dto.AssessmentReport{Period: string(period)}
	if !caps.CanView {
		report.View = listquery.Failed[dto.AssessmentRow](appErrors.ErrForbidden, st, caps)
		return report, false, nil
	}

	filterState := st
	filterState.Sort = listquery.SortSpec{}
	params := listquery.Serialize(assessmentReportFilters, filterState, listquery.SerializeOptions{
		Overrides: institutionBoundScope("institution_id")(p),
	})

	resource := string(models.ResourceAssessments)
	fetched, err := fetchReportRecords(ctx, s.cache, resource, "#report", ScopeOf(p), params, s.source.List)
	if err != nil {
		report.View = listquery.Failed[dto.AssessmentRow](err, st, caps)
		return report, false, nil
	}
	report.Truncated = fetched.truncated

	rows, dropped := AssessmentRows(fetched.records, period)
	report.Dropped = dropped
	if st.Sort.Active() {
		rows = listquery.SortRows(rows, st.Sort, assessmentRowFields, listquery.NewCollator(s.locale))
	}
	pagination := listquery.Reconcile(st.Page, nil, len(rows))
	if pagination.Clamped {
		st.SetPage(pagination.Page)
	}
	report.View = listquery.Ready(listquery.Paginate(rows, pagination.Page, pagination.PerPage), pagination, st, caps)
	return report, fetched.hit, nil
}

// AssessmentRows buckets results newest first. AverageScore is the mean of
// the scored results rounded to one decimal, nil when none were scored;
// StudentCount is summed.
func AssessmentRows(results []models.AssessmentResult, period bucket.Period) ([]dto.AssessmentRow, int) {
	grouped := bucket.GroupBy(results, func(r models.AssessmentResult) (time.Time, bool) {
		return bucket.ParseDate(r.AssessmentDate)
	}, period)

	rows := make([]dto.AssessmentRow, 0, len(grouped.Groups))
	for _, g := range grouped.Groups {
		row := dto.AssessmentRow{
			Key:       g.Key,
			StartDate: g.Start.Format(listquery.DateLayout),
			EndDate:   g.End.Format(listquery.DateLayout),
			Count:     len(g.Items),
		}
		var sum float64
		scored := 0
		for _, r := range g.Items {
			row.StudentCount += r.StudentCount
			if r.Score != nil {
				sum += *r.Score
				scored++
			}
		}
		if scored > 0 {
			avg := math.Round(sum/float64(scored)*10) / 10
			row.AverageScore = &avg
		}
		rows = append(rows, row)
	}
	return rows, grouped.Dropped
}
