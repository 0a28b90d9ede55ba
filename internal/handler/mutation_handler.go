package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type mutationService interface {
	Create(ctx context.Context, p models.Principal, resource models.Resource, body dto.MutationRequest) (*dto.MutationResponse, error)
	Update(ctx context.Context, p models.Principal, resource models.Resource, id int64, body dto.MutationRequest) (*dto.MutationResponse, error)
	Delete(ctx context.Context, p models.Principal, resource models.Resource, id int64) (*dto.MutationResponse, error)
	ToggleStatus(ctx context.Context, p models.Principal, resource models.Resource, id int64, req dto.StatusRequest) (*dto.MutationResponse, error)
}

// maxBodyBytes bounds write payloads.
const maxBodyBytes = 1 << 20

// MutationHandler exposes create/update/delete/status writes. Each method
// returns the handler bound to one resource family.
type MutationHandler struct {
	mutations mutationService
}

// NewMutationHandler constructs handler.
func NewMutationHandler(mutations mutationService) *MutationHandler {
	return &MutationHandler{mutations: mutations}
}

// Create godoc
// @Summary Create a record
// @Tags Mutations
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /{resource} [post]
func (h *MutationHandler) Create(resource models.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			return
		}
		body, ok := readBody(c)
		if !ok {
			return
		}
		res, err := h.mutations.Create(c.Request.Context(), principal, resource, body)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, res)
	}
}

// Update godoc
// @Summary Replace a record
// @Tags Mutations
// @Accept json
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /{resource}/{id} [put]
func (h *MutationHandler) Update(resource models.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		body, ok := readBody(c)
		if !ok {
			return
		}
		res, err := h.mutations.Update(c.Request.Context(), principal, resource, id, body)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, res, nil)
	}
}

// Delete godoc
// @Summary Delete a record
// @Tags Mutations
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /{resource}/{id} [delete]
func (h *MutationHandler) Delete(resource models.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		res, err := h.mutations.Delete(c.Request.Context(), principal, resource, id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, res, nil)
	}
}

// ToggleStatus godoc
// @Summary Change a record's status
// @Tags Mutations
// @Accept json
// @Param id path int true "Record ID"
// @Param payload body dto.StatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /{resource}/{id}/status [patch]
func (h *MutationHandler) ToggleStatus(resource models.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req dto.StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
			return
		}
		res, err := h.mutations.ToggleStatus(c.Request.Context(), principal, resource, id, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, res, nil)
	}
}

func readBody(c *gin.Context) (dto.MutationRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable request body"))
		return nil, false
	}
	if len(body) > maxBodyBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "request body too large"))
		return nil, false
	}
	return dto.MutationRequest(body), true
}
