package dto

import "encoding/json"

// MutationRequest is the raw create/update body; it is decoded into the
// resource's payload type before validation.
type MutationRequest = json.RawMessage

// StatusRequest captures PATCH /:resource/:id/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

// MutationResponse echoes the upstream record after a write.
type MutationResponse struct {
	Resource    string          `json:"resource"`
	ID          int64           `json:"id,omitempty"`
	Record      json.RawMessage `json:"record,omitempty"`
	Invalidated []string        `json:"invalidated"`
}

// CacheInvalidateRequest captures POST /cache/invalidate.
type CacheInvalidateRequest struct {
	Resources []string `json:"resources" validate:"required,min=1,dive,required"`
}
