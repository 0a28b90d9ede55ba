package models

// AssessmentResult is the outcome of one assessment at one institution.
type AssessmentResult struct {
	ID              int64    `json:"id"`
	AssessmentDate  string   `json:"assessment_date"`
	AssessmentType  string   `json:"assessment_type"`
	Subject         *string  `json:"subject,omitempty"`
	InstitutionID   int64    `json:"institution_id"`
	InstitutionName string   `json:"institution_name"`
	ClassName       *string  `json:"class_name,omitempty"`
	Score           *float64 `json:"score"`
	StudentCount    int      `json:"student_count"`
	Status          string   `json:"status,omitempty"`
}

// AssessmentPayload is the create/update body.
type AssessmentPayload struct {
	AssessmentDate string   `json:"assessment_date" validate:"required,datetime=2006-01-02"`
	AssessmentType string   `json:"assessment_type" validate:"required"`
	Subject        *string  `json:"subject,omitempty"`
	InstitutionID  int64    `json:"institution_id" validate:"required,gt=0"`
	ClassName      *string  `json:"class_name,omitempty"`
	Score          *float64 `json:"score,omitempty" validate:"omitempty,min=0,max=100"`
	StudentCount   int      `json:"student_count" validate:"min=0"`
}
