package handler

import (
	"context"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/service"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

type listService[T any] interface {
	Parse(q url.Values) service.ListRequest
	List(ctx context.Context, p models.Principal, req service.ListRequest) service.ListResult[T]
}

// ListHandler serves one paginated list screen.
type ListHandler[T any] struct {
	lists listService[T]
}

// NewListHandler constructs a list handler.
func NewListHandler[T any](lists listService[T]) *ListHandler[T] {
	return &ListHandler[T]{lists: lists}
}

// List godoc
// @Summary List records
// @Description Filters, sort and page come from the query string. Unknown keys are ignored.
// @Tags Lists
// @Produce json
// @Param q query string false "Search term"
// @Param sort query string false "Sort field"
// @Param direction query string false "asc or desc"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /{resource} [get]
func (h *ListHandler[T]) List(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	res := h.lists.List(c.Request.Context(), principal, h.lists.Parse(c.Request.URL.Query()))
	middleware.SetCacheHit(c, res.CacheHit)
	response.View(c, res.View, middleware.ExtractMeta(c))
}
