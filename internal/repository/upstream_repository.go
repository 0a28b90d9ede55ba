package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// ListRepository reads one paginated upstream collection.
type ListRepository[T any] struct {
	client *upstream.Client
	path   string
}

// NewListRepository binds a collection path such as "surveys" or "tasks/assigned".
func NewListRepository[T any](client *upstream.Client, path string) *ListRepository[T] {
	return &ListRepository[T]{client: client, path: strings.Trim(path, "/")}
}

// Path returns the upstream collection path.
func (r *ListRepository[T]) Path() string {
	return r.path
}

// List fetches one page (or the whole list for unpaginated endpoints).
func (r *ListRepository[T]) List(ctx context.Context, params url.Values) (listquery.Envelope[T], error) {
	return upstream.List[T](ctx, r.client, r.path, params)
}

// InstitutionRepository adds single-record lookups to the institution collection.
type InstitutionRepository struct {
	*ListRepository[models.Institution]
}

func NewInstitutionRepository(client *upstream.Client) *InstitutionRepository {
	return &InstitutionRepository{ListRepository: NewListRepository[models.Institution](client, "institutions")}
}

// Get returns one institution by id.
func (r *InstitutionRepository) Get(ctx context.Context, id int64) (*models.Institution, error) {
	var inst models.Institution
	if err := r.client.GetJSON(ctx, fmt.Sprintf("institutions/%d", id), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// AttendanceRepository reads daily attendance records and their summary.
type AttendanceRepository struct {
	*ListRepository[models.AttendanceRecord]
}

func NewAttendanceRepository(client *upstream.Client) *AttendanceRepository {
	return &AttendanceRepository{ListRepository: NewListRepository[models.AttendanceRecord](client, "attendance")}
}

// Stats returns the summary block for the same filters as List.
func (r *AttendanceRepository) Stats(ctx context.Context, params url.Values) (*models.AttendanceStats, error) {
	var stats models.AttendanceStats
	if err := r.client.GetJSON(ctx, "attendance/stats", params, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SurveyRepository reads surveys, their analytics and their spreadsheet exports.
type SurveyRepository struct {
	*ListRepository[models.Survey]
}

func NewSurveyRepository(client *upstream.Client) *SurveyRepository {
	return &SurveyRepository{ListRepository: NewListRepository[models.Survey](client, "surveys")}
}

// Overview fetches the analytics overview block.
func (r *SurveyRepository) Overview(ctx context.Context) (*models.SurveyOverview, error) {
	var overview models.SurveyOverview
	if err := r.client.GetJSON(ctx, "surveys/analytics/overview", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// Export downloads the upstream spreadsheet of one survey's responses.
func (r *SurveyRepository) Export(ctx context.Context, surveyID int64, params url.Values) (*upstream.Blob, error) {
	return r.client.Download(ctx, fmt.Sprintf("surveys/%d/export", surveyID), params)
}

// WriteRepository sends create, update, delete and status changes upstream.
type WriteRepository struct {
	client *upstream.Client
}

func NewWriteRepository(client *upstream.Client) *WriteRepository {
	return &WriteRepository{client: client}
}

// Create posts payload to the collection path and decodes the created record into dest.
func (r *WriteRepository) Create(ctx context.Context, path string, payload, dest interface{}) error {
	return r.client.SendJSON(ctx, http.MethodPost, path, payload, dest)
}

// Update replaces the record at path/id.
func (r *WriteRepository) Update(ctx context.Context, path string, id int64, payload, dest interface{}) error {
	return r.client.SendJSON(ctx, http.MethodPut, fmt.Sprintf("%s/%d", path, id), payload, dest)
}

// Delete removes the record at path/id.
func (r *WriteRepository) Delete(ctx context.Context, path string, id int64) error {
	return r.client.SendJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", path, id), nil, nil)
}

// SetStatus patches the record's status field.
func (r *WriteRepository) SetStatus(ctx context.Context, path string, id int64, status string, dest interface{}) error {
	body := map[string]string{"status": status}
	return r.client.SendJSON(ctx, http.MethodPatch, fmt.Sprintf("%s/%d/status", path, id), body, dest)
}
