package models

// SchoolRef is the embedded school of an attendance record.
type SchoolRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// AttendanceRecord is one class's head count for one day.
type AttendanceRecord struct {
	ID             int64      `json:"id"`
	Date           string     `json:"date"`
	SchoolName     string     `json:"school_name"`
	ClassName      string     `json:"class_name"`
	StartCount     int        `json:"start_count"`
	EndCount       int        `json:"end_count"`
	AttendanceRate float64    `json:"attendance_rate"`
	Notes          *string    `json:"notes,omitempty"`
	School         *SchoolRef `json:"school,omitempty"`
}

// AttendanceStats is the summary block of the attendance report.
type AttendanceStats struct {
	TotalStudents     int     `json:"total_students"`
	AverageAttendance float64 `json:"average_attendance"`
	TrendDirection    string  `json:"trend_direction"`
	TotalDays         int     `json:"total_days"`
	TotalRecords      int     `json:"total_records"`
}
