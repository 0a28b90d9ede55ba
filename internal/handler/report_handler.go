package handler

import (
	"context"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/service"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/export"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type attendanceReporter interface {
	Report(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values) (*dto.AttendanceReport, bool, error)
}

type assessmentReporter interface {
	Report(ctx context.Context, p models.Principal, q dto.AssessmentReportQuery, raw url.Values) (*dto.AssessmentReport, bool, error)
}

type attendanceExporter interface {
	AttendanceExport(ctx context.Context, p models.Principal, q dto.AttendanceReportQuery, raw url.Values, f export.Format) (*service.ExportFile, error)
}

// ReportHandler exposes the period-grouped report endpoints.
type ReportHandler struct {
	attendance  attendanceReporter
	assessments assessmentReporter
	exports     attendanceExporter
}

// NewReportHandler constructs handler.
func NewReportHandler(attendance attendanceReporter, assessments assessmentReporter, exports attendanceExporter) *ReportHandler {
	return &ReportHandler{attendance: attendance, assessments: assessments, exports: exports}
}

// Attendance godoc
// @Summary Attendance report
// @Tags Reports
// @Produce json
// @Param period query string false "daily, weekly or monthly"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Param school_id query int false "School filter"
// @Param class_name query string false "Class filter"
// @Success 200 {object} response.Envelope
// @Router /attendance/reports [get]
func (h *ReportHandler) Attendance(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var q dto.AttendanceReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report query"))
		return
	}
	report, hit, err := h.attendance.Report(c.Request.Context(), principal, q, c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.Report(c, report.View, report, middleware.ExtractMeta(c))
}

// AttendanceExport godoc
// @Summary Download the attendance report
// @Tags Reports
// @Produce octet-stream
// @Param format query string false "csv, xlsx or pdf"
// @Success 200 {file} file
// @Router /attendance/reports/export [get]
func (h *ReportHandler) AttendanceExport(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var q dto.AttendanceReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report query"))
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	file, err := h.exports.AttendanceExport(c.Request.Context(), principal, q, c.Request.URL.Query(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Assessment godoc
// @Summary Assessment report
// @Tags Reports
// @Produce json
// @Param period query string false "daily, weekly or monthly"
// @Success 200 {object} response.Envelope
// @Router /assessments/reports [get]
func (h *ReportHandler) Assessment(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var q dto.AssessmentReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report query"))
		return
	}
	report, hit, err := h.assessments.Report(c.Request.Context(), principal, q, c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.Report(c, report.View, report, middleware.ExtractMeta(c))
}
