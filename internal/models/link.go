package models

// LinkResource is a shared external link.
type LinkResource struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description *string `json:"description,omitempty"`
	LinkType    string  `json:"link_type"`
	ShareScope  string  `json:"share_scope"`
	Status      string  `json:"status"`
	IsFeatured  bool    `json:"is_featured"`
	ClickCount  *int    `json:"click_count,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// LinkPayload is the create/update body.
type LinkPayload struct {
	Title       string  `json:"title" validate:"required,max=255"`
	URL         string  `json:"url" validate:"required,url"`
	Description *string `json:"description,omitempty"`
	LinkType    string  `json:"link_type" validate:"required,oneof=external video form document"`
	ShareScope  string  `json:"share_scope" validate:"required,oneof=public regional sectoral institutional specific_users"`
	IsFeatured  bool    `json:"is_featured"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}
