package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/dto"
	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type cacheInvalidator interface {
	Invalidate(ctx context.Context, resources ...string) error
}

// CacheHandler lets administrators drop cached list families.
type CacheHandler struct {
	cache cacheInvalidator
}

// NewCacheHandler constructs handler.
func NewCacheHandler(cache cacheInvalidator) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Invalidate godoc
// @Summary Invalidate cached resource families
// @Tags Cache
// @Accept json
// @Produce json
// @Param payload body dto.CacheInvalidateRequest true "Resources"
// @Success 200 {object} response.Envelope
// @Router /cache/invalidate [post]
func (h *CacheHandler) Invalidate(c *gin.Context) {
	var req dto.CacheInvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Resources) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "resources are required"))
		return
	}
	families := make([]string, 0, len(req.Resources))
	for _, raw := range req.Resources {
		resource, ok := models.ParseResource(raw)
		if !ok {
			response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, map[string][]string{"resources": {"unknown resource " + raw}}))
			return
		}
		families = append(families, string(resource))
	}
	if err := h.cache.Invalidate(c.Request.Context(), families...); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cache invalidation failed"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"invalidated": families}, nil)
}
