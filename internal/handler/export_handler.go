package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/service"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type bulkExportService interface {
	CreateJob(ctx context.Context, p models.Principal, req dto.BulkExportRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, p models.Principal, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler manages bulk export jobs and signed downloads.
type ExportHandler struct {
	exports bulkExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports bulkExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// CreateBulk godoc
// @Summary Export the results of many surveys
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.BulkExportRequest true "Surveys to export"
// @Success 202 {object} response.Envelope
// @Router /surveys/exports [post]
func (h *ExportHandler) CreateBulk(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	job, err := h.exports.CreateJob(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Bulk export progress
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	status, err := h.exports.GetStatus(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished bulk export
// @Tags Exports
// @Produce application/zip
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	contentType := "application/zip"
	if ext := filepath.Ext(download.Filename); ext != ".zip" {
		if contentType = mime.TypeByExtension(ext); contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		_ = c.Error(err)
	}
}
