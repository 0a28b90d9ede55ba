package dto

import (
	"time"

	"github.com/noah-isme/atis-gateway/internal/models"
)

// BulkExportRequest captures POST /surveys/exports.
type BulkExportRequest struct {
	SurveyIDs []int64 `json:"survey_ids" validate:"required,min=1,max=200,dive,gt=0"`
	Format    string  `json:"format" validate:"omitempty,oneof=csv xlsx pdf"`
}

// ExportJobResponse is returned when a bulk export is accepted.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
	Total    int                 `json:"total"`
}

// ExportStatusResponse describes a bulk export's progress.
type ExportStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ExportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	Total      int                 `json:"total"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
