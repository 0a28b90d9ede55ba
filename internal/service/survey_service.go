package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// fallbackSampleSize is how many surveys the fallback overview is computed from.
const fallbackSampleSize = 50

type surveySource interface {
	Lister[models.Survey]
	Overview(ctx context.Context) (*models.SurveyOverview, error)
	Export(ctx context.Context, surveyID int64, params url.Values) (*upstream.Blob, error)
}

// SurveyResultsService serves the survey results dashboard.
type SurveyResultsService struct {
	source surveySource
	cache  *QueryCache
	logger *zap.Logger
}

// NewSurveyResultsService constructs the service.
func NewSurveyResultsService(source surveySource, cache *QueryCache, logger *zap.Logger) *SurveyResultsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurveyResultsService{source: source, cache: cache, logger: logger}
}

// Overview returns the analytics overview. When the analytics endpoint fails
// for any reason other than a permission denial, an approximation computed
// from the first page of surveys is returned instead.
func (s *SurveyResultsService) Overview(ctx context.Context, p models.Principal) (*models.SurveyOverview, bool, error) {
	if !models.CapabilitiesFor(p.Role, models.ResourceSurveyStats).CanView {
		return nil, false, appErrors.ErrForbidden
	}

	resource := string(models.ResourceSurveyStats)
	key := listquery.CacheKey(resource, ScopeOf(p), url.Values{"view": {"overview"}})
	overview, hit, err := Fetch(ctx, s.cache, resource, key, 0, func(ctx context.Context) (*models.SurveyOverview, error) {
		o, err := s.source.Overview(ctx)
		if err != nil {
			return nil, err
		}
		o.Source = models.OverviewSourceAnalytics
		return o, nil
	})
	if err == nil {
		return overview, hit, nil
	}
	if appErrors.IsForbidden(err) || errors.Is(err, context.Canceled) {
		return nil, false, err
	}
	s.logger.Warn("survey analytics unavailable, using fallback", zap.Error(err))

	params := url.Values{"page": {"1"}, "per_page": {strconv.Itoa(fallbackSampleSize)}}
	env, err := s.source.List(ctx, params)
	if err != nil {
		return nil, false, err
	}
	total := len(env.Data)
	if env.Paginated {
		total = env.Meta.Total
	}
	return FallbackSurveyStats(env.Data, total), false, nil
}

// FallbackSurveyStats approximates the overview from a list of surveys. total
// is the number of surveys that exist upstream; when it exceeds len(surveys)
// the result is marked approximate. Completion figures cannot be derived and
// are left nil.
func FallbackSurveyStats(surveys []models.Survey, total int) *models.SurveyOverview {
	if total < len(surveys) {
		total = len(surveys)
	}
	out := &models.SurveyOverview{
		Source:      models.OverviewSourceFallback,
		Approximate: total > len(surveys),
		ByStatus:    make(map[string]int),
	}
	out.Overview.TotalSurveys = total
	for _, survey := range surveys {
		out.ByStatus[survey.Status]++
		out.ResponseStats.TotalResponses += survey.ResponseCount
		switch survey.Status {
		case models.SurveyStatusPublished:
			out.Overview.ActiveSurveys++
		case models.SurveyStatusDraft:
			out.Overview.DraftSurveys++
		case models.SurveyStatusClosed:
			out.Overview.ClosedSurveys++
		case models.SurveyStatusArchived:
			out.Overview.ArchivedSurveys++
		}
	}
	return out
}

// ExportResponses downloads one survey's responses as produced upstream.
func (s *SurveyResultsService) ExportResponses(ctx context.Context, p models.Principal, surveyID int64, format export.Format) (*upstream.Blob, error) {
	if !models.CapabilitiesFor(p.Role, models.ResourceSurveys).CanView {
		return nil, appErrors.ErrForbidden
	}
	if format == "" {
		format = export.FormatXLSX
	}
	blob, err := s.source.Export(ctx, surveyID, url.Values{"format": {string(format)}})
	if err != nil {
		return nil, err
	}
	if blob.Filename == "" {
		blob.Filename = fmt.Sprintf("survey-%d-results.%s", surveyID, format)
	}
	if blob.ContentType == "" {
		blob.ContentType = format.ContentType()
	}
	return blob, nil
}
