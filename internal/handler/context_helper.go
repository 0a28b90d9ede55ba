package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

// principalFromContext returns the caller or writes 401 and reports false.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return *p, true
}

// idParam parses the :id path parameter or writes 400 and reports false.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}
