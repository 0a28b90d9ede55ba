package dto

import (
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// AttendanceReportQuery captures GET /attendance/reports filters. Id filters
// stay strings: "all" is a valid value and is dropped during serialization.
type AttendanceReportQuery struct {
	Period    string `form:"period" validate:"omitempty,oneof=daily weekly monthly"`
	StartDate string `form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	SchoolID  string `form:"school_id"`
	ClassName string `form:"class_name"`
}

// AttendanceRow is one report line: a single day's record for the daily
// period, or a week/month bucket of records otherwise.
type AttendanceRow struct {
	Key            string  `json:"key"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	SchoolName     string  `json:"school_name,omitempty"`
	ClassName      string  `json:"class_name,omitempty"`
	TotalStart     int     `json:"total_start"`
	TotalEnd       int     `json:"total_end"`
	AttendanceRate float64 `json:"attendance_rate"`
	Count          int     `json:"count"`
}

// AttendanceReport is the attendance report view plus its summary.
type AttendanceReport struct {
	listquery.View[AttendanceRow]
	Period  string                  `json:"period"`
	Stats   *models.AttendanceStats `json:"stats,omitempty"`
	Classes []string                `json:"classes"`
	// Dropped counts records whose date could not be read.
	Dropped int `json:"dropped,omitempty"`
	// Truncated is set when the range spans more upstream pages than one report reads.
	Truncated bool `json:"truncated,omitempty"`
}

// AssessmentReportQuery captures GET /assessments/reports filters.
type AssessmentReportQuery struct {
	Period         string `form:"period" validate:"omitempty,oneof=daily weekly monthly"`
	StartDate      string `form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate        string `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	InstitutionID  string `form:"institution_id"`
	AssessmentType string `form:"assessment_type"`
}

// AssessmentRow is one period bucket of assessment results.
type AssessmentRow struct {
	Key          string   `json:"key"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	AverageScore *float64 `json:"average_score"`
	StudentCount int      `json:"student_count"`
	Count        int      `json:"count"`
}

// AssessmentReport is the assessment report view.
type AssessmentReport struct {
	listquery.View[AssessmentRow]
	Period    string `json:"period"`
	Dropped   int    `json:"dropped,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}
