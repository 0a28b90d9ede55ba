package upstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

type errorBody struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

// Classify maps an upstream status and body to a typed error.
func Classify(status int, body []byte) error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)
	message := strings.TrimSpace(parsed.Message)
	if message == "" {
		message = strings.TrimSpace(parsed.Error)
	}

	switch {
	case status == http.StatusUnauthorized:
		return appErrors.Clone(appErrors.ErrUnauthorized, message)
	case status == http.StatusForbidden:
		return appErrors.Clone(appErrors.ErrForbidden, message)
	case status == http.StatusNotFound:
		return appErrors.Clone(appErrors.ErrNotFound, message)
	case status == http.StatusConflict:
		return appErrors.Clone(appErrors.ErrConflict, message)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		err := appErrors.Clone(appErrors.ErrValidation, message)
		err.Status = status
		if len(parsed.Errors) > 0 {
			err = appErrors.WithDetails(err, parsed.Errors)
		}
		return err
	case status >= http.StatusInternalServerError:
		return appErrors.Clone(appErrors.ErrUpstreamUnavailable, message)
	default:
		err := appErrors.Clone(appErrors.ErrInternal, message)
		err.Status = http.StatusBadGateway
		return err
	}
}

// Retryable reports whether err is a transient upstream failure.
func Retryable(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == appErrors.ErrUpstreamUnavailable.Code
}
