// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *listquery.Pagination  `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *listquery.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// View sends a list view. A forbidden view is answered with 403 and the
// FORBIDDEN error alongside the view, so clients render the permission panel.
func View[T any](c *gin.Context, view listquery.View[T], meta map[string]interface{}) {
	Report(c, view, view, meta)
}

// Report sends body, a value embedding view, with the status view implies.
func Report[T any](c *gin.Context, view listquery.View[T], body interface{}, meta map[string]interface{}) {
	noStore(c)
	env := Envelope{Data: body, Meta: meta}
	status := ViewStatus(view)
	switch view.State {
	case listquery.StateForbidden:
		env.Error = appErrors.ErrForbidden
	case listquery.StateError:
	default:
		p := view.Pagination
		env.Pagination = &p
	}
	c.JSON(status, env)
}

// ViewStatus maps a view state to its HTTP status.
func ViewStatus[T any](view listquery.View[T]) int {
	switch view.State {
	case listquery.StateForbidden:
		return http.StatusForbidden
	case listquery.StateError:
		if view.Status == 0 {
			return http.StatusInternalServerError
		}
		return view.Status
	}
	return http.StatusOK
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Accepted responds with HTTP 202 Accepted.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Envelope{Error: appErr})
}

// Attachment streams a downloadable file.
func Attachment(c *gin.Context, filename, contentType string, data []byte) {
	noStore(c)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
