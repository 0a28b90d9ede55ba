package models

// Student is a pupil enrolled at a school.
type Student struct {
	ID              int64   `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	StudentNumber   *string `json:"student_number,omitempty"`
	ClassName       *string `json:"class_name,omitempty"`
	GradeLevel      *int    `json:"grade_level,omitempty"`
	InstitutionID   int64   `json:"institution_id"`
	InstitutionName *string `json:"institution_name,omitempty"`
	BirthDate       *string `json:"birth_date,omitempty"`
	IsActive        bool    `json:"is_active"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentPayload is the create/update body.
type StudentPayload struct {
	FirstName     string  `json:"first_name" validate:"required,max=100"`
	LastName      string  `json:"last_name" validate:"required,max=100"`
	StudentNumber *string `json:"student_number,omitempty"`
	ClassName     *string `json:"class_name,omitempty"`
	InstitutionID int64   `json:"institution_id" validate:"required,gt=0"`
	BirthDate     *string `json:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
