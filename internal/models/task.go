package models

// Task is an assignment pushed down the institution hierarchy.
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Category    *string `json:"category,omitempty"`
	Deadline    *string `json:"deadline,omitempty"`
	Progress    *int    `json:"progress,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// TaskPayload is the create/update body.
type TaskPayload struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority" validate:"required,oneof=low medium high urgent"`
	Category    *string `json:"category,omitempty"`
	Deadline    *string `json:"deadline,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
