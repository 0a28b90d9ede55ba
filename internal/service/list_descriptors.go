package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/bucket"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// InstitutionLookup resolves a single institution.
type InstitutionLookup interface {
	Get(ctx context.Context, id int64) (*models.Institution, error)
}

// institutionBoundScope forces param to the caller's institution for school admins and teachers.
func institutionBoundScope(param string) func(models.Principal) url.Values {
	return func(p models.Principal) url.Values {
		if !p.Role.InstitutionBound() || p.InstitutionID <= 0 {
			return nil
		}
		return url.Values{param: {strconv.FormatInt(p.InstitutionID, 10)}}
	}
}

func dateValue(raw string) listquery.Value {
	t, ok := bucket.ParseDate(raw)
	if !ok {
		return listquery.Null()
	}
	return listquery.Time(t)
}

func optionalDate(raw *string) listquery.Value {
	if raw == nil {
		return listquery.Null()
	}
	return dateValue(*raw)
}

func optionalInt(n *int) listquery.Value {
	if n == nil {
		return listquery.Null()
	}
	return listquery.Int(*n)
}

// InstitutionListDescriptor describes the institution hierarchy list. The
// parent filter is sent as region_id or sector_id when the selected parent is
// a region (level 2) or sector (level 3), and as parent_id otherwise.
func InstitutionListDescriptor(src Lister[models.Institution], lookup InstitutionLookup, cache *QueryCache, logger *zap.Logger) ListDescriptor[models.Institution] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ListDescriptor[models.Institution]{
		Resource: models.ResourceInstitutions,
		Source:   src,
		Filters: []listquery.FilterSpec{
			{Key: "search"},
			{Key: "type"},
			{Key: "status"},
			{Key: "level", Kind: listquery.KindInt},
			{Key: "parent", Param: "parent_id", Kind: listquery.KindInt},
		},
		ServerSort:      []string{"name", "level", "type", "created_at"},
		Fields:          listquery.FieldSet[models.Institution]{"student_count": func(i models.Institution) listquery.Value { return optionalInt(i.StudentCount) }},
		ServerPaginated: true,
		Prepare: func(ctx context.Context, p models.Principal, specs []listquery.FilterSpec, st listquery.State) []listquery.FilterSpec {
			raw, ok := st.Filters["parent"]
			if !ok || listquery.IsUnset(raw) || lookup == nil {
				return specs
			}
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return specs
			}
			key := listquery.CacheKey(string(models.ResourceInstitutions), ScopeOf(p), url.Values{"lookup": {raw}})
			parent, _, err := Fetch(ctx, cache, string(models.ResourceInstitutions), key, 0, func(ctx context.Context) (models.Institution, error) {
				inst, err := lookup.Get(ctx, id)
				if err != nil {
					return models.Institution{}, err
				}
				return *inst, nil
			})
			if err != nil {
				logger.Debug("parent institution lookup failed", zap.Int64("parent_id", id), zap.Error(err))
				return specs
			}
			out := append([]listquery.FilterSpec(nil), specs...)
			for i := range out {
				if out[i].Key != "parent" {
					continue
				}
				level := parent.Level
				out[i].Resolve = func(string) string {
					switch level {
					case 2:
						return "region_id"
					case 3:
						return "sector_id"
					}
					return ""
				}
			}
			return out
		},
		SearchText: func(i models.Institution) string { return i.Name },
	}
}

// SurveyListDescriptor describes the survey list.
func SurveyListDescriptor(src Lister[models.Survey]) ListDescriptor[models.Survey] {
	return ListDescriptor[models.Survey]{
		Resource: models.ResourceSurveys,
		Source:   src,
		Filters: []listquery.FilterSpec{
			{Key: "search"},
			{Key: "status"},
			{Key: "survey_type"},
			{Key: "start_date", Kind: listquery.KindDate},
			{Key: "end_date", Kind: listquery.KindDate},
		},
		ServerSort: []string{"created_at", "title", "status"},
		Fields: listquery.FieldSet[models.Survey]{
			"response_count": func(s models.Survey) listquery.Value { return listquery.Int(s.ResponseCount) },
			"end_date":       func(s models.Survey) listquery.Value { return optionalDate(s.EndDate) },
		},
		ServerPaginated: true,
		SearchText:      func(s models.Survey) string { return s.Title },
	}
}

// StudentListDescriptor describes the student list. School staff only ever see their own school.
func StudentListDescriptor(src Lister[models.Student]) ListDescriptor[models.Student] {
	return ListDescriptor[models.Student]{
		Resource: models.ResourceStudents,
		Source:   src,
		Filters: []listquery.FilterSpec{
			{Key: "search"},
			{Key: "class_name"},
			{Key: "grade_level", Kind: listquery.KindInt},
			{Key: "is_active", Kind: listquery.KindBool},
			{Key: "institution_id", Kind: listquery.KindInt},
		},
		ServerSort: []string{"first_name", "last_name", "created_at"},
		Fields: listquery.FieldSet[models.Student]{
			"name":        func(s models.Student) listquery.Value { return listquery.Text(s.FullName()) },
			"class_name":  func(s models.Student) listquery.Value { return listquery.OptionalText(s.ClassName) },
			"grade_level": func(s models.Student) listquery.Value { return optionalInt(s.GradeLevel) },
			"birth_date":  func(s models.Student) listquery.Value { return optionalDate(s.BirthDate) },
		},
		ServerPaginated: true,
		Scope:           institutionBoundScope("institution_id"),
		SearchText:      func(s models.Student) string { return s.FullName() },
	}
}

func taskFields() listquery.FieldSet[models.Task] {
	return listquery.FieldSet[models.Task]{
		"title":    func(t models.Task) listquery.Value { return listquery.Text(t.Title) },
		"progress": func(t models.Task) listquery.Value { return optionalInt(t.Progress) },
	}
}

func taskFilters() []listquery.FilterSpec {
	return []listquery.FilterSpec{
		{Key: "search"},
		{Key: "status"},
		{Key: "priority"},
		{Key: "category"},
		{Key: "deadline_from", Kind: listquery.KindDate},
		{Key: "deadline_to", Kind: listquery.KindDate},
	}
}

// TaskListDescriptor describes the tasks created by the caller's level.
func TaskListDescriptor(src Lister[models.Task]) ListDescriptor[models.Task] {
	return ListDescriptor[models.Task]{
		Resource:        models.ResourceTasks,
		Source:          src,
		Filters:         taskFilters(),
		ServerSort:      []string{"deadline", "created_at", "priority", "status"},
		Fields:          taskFields(),
		ServerPaginated: true,
		SearchText:      func(t models.Task) string { return t.Title },
	}
}

// AssignedTaskListDescriptor describes the tasks assigned to the caller's institution.
func AssignedTaskListDescriptor(src Lister[models.Task]) ListDescriptor[models.Task] {
	desc := TaskListDescriptor(src)
	desc.Resource = models.ResourceAssignedTasks
	return desc
}

// LinkListDescriptor describes shared links. The link endpoint names its sort parameters differently.
func LinkListDescriptor(src Lister[models.LinkResource]) ListDescriptor[models.LinkResource] {
	return ListDescriptor[models.LinkResource]{
		Resource: models.ResourceLinks,
		Source:   src,
		Filters: []listquery.FilterSpec{
			{Key: "search"},
			{Key: "link_type"},
			{Key: "share_scope"},
			{Key: "status"},
			{Key: "is_featured", Kind: listquery.KindBool},
		},
		ServerSort: []string{"title", "created_at", "click_count"},
		Fields: listquery.FieldSet[models.LinkResource]{
			"expires_at": func(l models.LinkResource) listquery.Value { return optionalDate(l.ExpiresAt) },
		},
		Params:          listquery.SerializeOptions{SortParam: "sort_by", DirectionParam: "sort_direction"},
		ServerPaginated: true,
		SearchText:      func(l models.LinkResource) string { return l.Title + " " + l.URL },
	}
}

// AssessmentListDescriptor describes assessment results. The endpoint returns
// the whole filtered set, so sorting and pagination happen in the gateway.
func AssessmentListDescriptor(src Lister[models.AssessmentResult]) ListDescriptor[models.AssessmentResult] {
	return ListDescriptor[models.AssessmentResult]{
		Resource: models.ResourceAssessments,
		Source:   src,
		Filters: []listquery.FilterSpec{
			{Key: "assessment_type"},
			{Key: "subject"},
			{Key: "institution_id", Kind: listquery.KindInt},
			{Key: "start_date", Kind: listquery.KindDate},
			{Key: "end_date", Kind: listquery.KindDate},
		},
		Fields: listquery.FieldSet[models.AssessmentResult]{
			"assessment_date":  func(a models.AssessmentResult) listquery.Value { return dateValue(a.AssessmentDate) },
			"institution_name": func(a models.AssessmentResult) listquery.Value { return listquery.Text(a.InstitutionName) },
			"score":            func(a models.AssessmentResult) listquery.Value { return listquery.OptionalNumber(a.Score) },
			"student_count":    func(a models.AssessmentResult) listquery.Value { return listquery.Int(a.StudentCount) },
		},
		Scope:      institutionBoundScope("institution_id"),
		SearchText: func(a models.AssessmentResult) string { return a.InstitutionName },
		TTL:        2 * time.Minute,
	}
}
