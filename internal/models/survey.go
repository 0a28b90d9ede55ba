package models

// SurveyStatus values used by the upstream API.
const (
	SurveyStatusDraft     = "draft"
	SurveyStatusPublished = "published"
	SurveyStatusArchived  = "archived"
	SurveyStatusClosed    = "closed"
)

// Survey is one questionnaire.
type Survey struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Status        string  `json:"status"`
	SurveyType    string  `json:"survey_type,omitempty"`
	ResponseCount int     `json:"response_count"`
	MaxResponses  *int    `json:"max_responses,omitempty"`
	StartDate     *string `json:"start_date,omitempty"`
	EndDate       *string `json:"end_date,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// SurveyPayload is the create/update body.
type SurveyPayload struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
	SurveyType  string  `json:"survey_type,omitempty"`
	StartDate   *string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Survey overview sources.
const (
	OverviewSourceAnalytics = "analytics"
	OverviewSourceFallback  = "fallback"
)

// SurveyOverviewCounts mirrors the analytics overview block.
type SurveyOverviewCounts struct {
	TotalSurveys    int `json:"total_surveys"`
	ActiveSurveys   int `json:"active_surveys"`
	DraftSurveys    int `json:"draft_surveys"`
	ClosedSurveys   int `json:"closed_surveys"`
	ArchivedSurveys int `json:"archived_surveys"`
}

// SurveyResponseStats holds response totals. Rates are nil when unknown.
type SurveyResponseStats struct {
	TotalResponses      int      `json:"total_responses"`
	CompletedResponses  *int     `json:"completed_responses"`
	CompletionRate      *float64 `json:"completion_rate"`
	AverageResponseRate *float64 `json:"average_response_rate"`
}

// SurveyOverview is the survey results dashboard summary.
type SurveyOverview struct {
	Overview      SurveyOverviewCounts `json:"overview"`
	ResponseStats SurveyResponseStats  `json:"response_stats"`
	ByStatus      map[string]int       `json:"by_status,omitempty"`
	Source        string               `json:"source"`
	// Approximate is set when the numbers were derived from a partial survey list.
	Approximate bool `json:"approximate"`
}
