package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

type upstreamWriter interface {
	Create(ctx context.Context, path string, payload, dest interface{}) error
	Update(ctx context.Context, path string, id int64, payload, dest interface{}) error
	Delete(ctx context.Context, path string, id int64) error
	SetStatus(ctx context.Context, path string, id int64, status string, dest interface{}) error
}

// MutationTarget maps a writable resource to its upstream collection and payload type.
type MutationTarget struct {
	Path string
	// NewPayload returns a pointer to an empty payload struct carrying validate tags.
	NewPayload func() interface{}
}

// DefaultMutationTargets lists the writable resource families.
func DefaultMutationTargets() map[models.Resource]MutationTarget {
	return map[models.Resource]MutationTarget{
		models.ResourceInstitutions: {Path: "institutions", NewPayload: func() interface{} { return &models.InstitutionPayload{} }},
		models.ResourceSurveys:      {Path: "surveys", NewPayload: func() interface{} { return &models.SurveyPayload{} }},
		models.ResourceStudents:     {Path: "students", NewPayload: func() interface{} { return &models.StudentPayload{} }},
		models.ResourceTasks:        {Path: "tasks", NewPayload: func() interface{} { return &models.TaskPayload{} }},
		models.ResourceLinks:        {Path: "link-shares", NewPayload: func() interface{} { return &models.LinkPayload{} }},
		models.ResourceAssessments:  {Path: "assessment-entries", NewPayload: func() interface{} { return &models.AssessmentPayload{} }},
	}
}

// MutationService validates writes, sends them upstream and invalidates the
// affected list families. Only one write per row may be in flight at a time,
// and a caller may not post the same new record twice concurrently.
type MutationService struct {
	writer    upstreamWriter
	cache     *QueryCache
	targets   map[models.Resource]MutationTarget
	validator *validator.Validate
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewMutationService constructs the service. A nil targets map uses DefaultMutationTargets.
func NewMutationService(writer upstreamWriter, cache *QueryCache, targets map[models.Resource]MutationTarget, validate *validator.Validate, logger *zap.Logger) *MutationService {
	if targets == nil {
		targets = DefaultMutationTargets()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationService{
		writer:    writer,
		cache:     cache,
		targets:   targets,
		validator: validate,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Create validates and posts a new record.
func (s *MutationService) Create(ctx context.Context, p models.Principal, resource models.Resource, body dto.MutationRequest) (*dto.MutationResponse, error) {
	target, err := s.authorize(p, resource, func(c models.Capabilities) bool { return c.CanCreate })
	if err != nil {
		return nil, err
	}
	payload, err := s.decode(target, body)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(createKey(resource, p, body))
	if err != nil {
		return nil, err
	}
	defer release()

	var record json.RawMessage
	if err := s.writer.Create(ctx, target.Path, payload, &record); err != nil {
		return nil, err
	}
	return s.finish(ctx, resource, 0, record), nil
}

// Update validates and replaces one record.
func (s *MutationService) Update(ctx context.Context, p models.Principal, resource models.Resource, id int64, body dto.MutationRequest) (*dto.MutationResponse, error) {
	target, err := s.authorize(p, resource, func(c models.Capabilities) bool { return c.CanEdit })
	if err != nil {
		return nil, err
	}
	payload, err := s.decode(target, body)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(rowKey(resource, id))
	if err != nil {
		return nil, err
	}
	defer release()

	var record json.RawMessage
	if err := s.writer.Update(ctx, target.Path, id, payload, &record); err != nil {
		return nil, err
	}
	return s.finish(ctx, resource, id, record), nil
}

// Delete removes one record.
func (s *MutationService) Delete(ctx context.Context, p models.Principal, resource models.Resource, id int64) (*dto.MutationResponse, error) {
	target, err := s.authorize(p, resource, func(c models.Capabilities) bool { return c.CanDelete })
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(rowKey(resource, id))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.writer.Delete(ctx, target.Path, id); err != nil {
		return nil, err
	}
	return s.finish(ctx, resource, id, nil), nil
}

// ToggleStatus sets the status field of one record.
func (s *MutationService) ToggleStatus(ctx context.Context, p models.Principal, resource models.Resource, id int64, req dto.StatusRequest) (*dto.MutationResponse, error) {
	target, err := s.authorize(p, resource, func(c models.Capabilities) bool { return c.CanEdit })
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	release, err := s.acquire(rowKey(resource, id))
	if err != nil {
		return nil, err
	}
	defer release()

	var record json.RawMessage
	if err := s.writer.SetStatus(ctx, target.Path, id, strings.TrimSpace(req.Status), &record); err != nil {
		return nil, err
	}
	return s.finish(ctx, resource, id, record), nil
}

// InFlight reports whether a write for the row is running.
func (s *MutationService) InFlight(resource models.Resource, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[rowKey(resource, id)]
	return ok
}

func (s *MutationService) authorize(p models.Principal, resource models.Resource, allowed func(models.Capabilities) bool) (MutationTarget, error) {
	target, ok := s.targets[resource]
	if !ok {
		return MutationTarget{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("resource %q is not writable", resource))
	}
	if !allowed(models.CapabilitiesFor(p.Role, resource)) {
		return MutationTarget{}, appErrors.ErrForbidden
	}
	return target, nil
}

func (s *MutationService) decode(target MutationTarget, body dto.MutationRequest) (interface{}, error) {
	payload := target.NewPayload()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, validationError(err)
	}
	return payload, nil
}

func (s *MutationService) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, appErrors.ErrMutationInFlight
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

// finish invalidates the written family and its dependents. Invalidation
// failures are logged; the write itself already succeeded.
func (s *MutationService) finish(ctx context.Context, resource models.Resource, id int64, record json.RawMessage) *dto.MutationResponse {
	families := []string{string(resource)}
	for _, dep := range resource.Dependents() {
		families = append(families, string(dep))
	}
	if err := s.cache.Invalidate(ctx, families...); err != nil {
		s.logger.Warn("cache invalidation after write failed", zap.Strings("resources", families), zap.Error(err))
	}
	if id == 0 && len(record) > 0 {
		var probe struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(record, &probe) == nil {
			id = probe.ID
		}
	}
	return &dto.MutationResponse{Resource: string(resource), ID: id, Record: record, Invalidated: families}
}

func rowKey(resource models.Resource, id int64) string {
	return fmt.Sprintf("%s:%d", resource, id)
}

// createKey identifies a pending create by caller and payload. Whitespace
// differences in the body do not change the key.
func createKey(resource models.Resource, p models.Principal, body dto.MutationRequest) string {
	var compact bytes.Buffer
	raw := []byte(body)
	if json.Compact(&compact, raw) == nil {
		raw = compact.Bytes()
	}
	return fmt.Sprintf("%s:new:%s:%x", resource, p.UserID, sha256.Sum256(raw))
}

// validationError maps validator failures to per-field messages.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
	}
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		details[field] = append(details[field], msg)
	}
	return appErrors.WithDetails(appErrors.ErrValidation, details)
}
