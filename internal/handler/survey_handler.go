package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type surveyResults interface {
	Overview(ctx context.Context, p models.Principal) (*models.SurveyOverview, bool, error)
	ExportResponses(ctx context.Context, p models.Principal, surveyID int64, format export.Format) (*upstream.Blob, error)
}

// SurveyHandler exposes survey statistics and per-survey exports.
type SurveyHandler struct {
	results surveyResults
}

// NewSurveyHandler constructs handler.
func NewSurveyHandler(results surveyResults) *SurveyHandler {
	return &SurveyHandler{results: results}
}

// Overview godoc
// @Summary Survey statistics
// @Description Falls back to counts derived from the survey list when analytics are unavailable.
// @Tags Surveys
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /surveys/overview [get]
func (h *SurveyHandler) Overview(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	overview, hit, err := h.results.Overview(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, overview, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download one survey's responses
// @Tags Surveys
// @Produce octet-stream
// @Param id path int true "Survey ID"
// @Param format query string false "csv, xlsx or pdf"
// @Success 200 {file} file
// @Router /surveys/{id}/export [get]
func (h *SurveyHandler) Export(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var format export.Format
	if raw := c.Query("format"); raw != "" {
		parsed, err := export.ParseFormat(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			return
		}
		format = parsed
	}
	blob, err := h.results.ExportResponses(c.Request.Context(), principal, id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, blob.Filename, blob.ContentType, blob.Data)
}
