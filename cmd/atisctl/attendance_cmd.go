package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/atis-gateway/internal/dto"
)

type attendanceFlags struct {
	period string
	from   string
	to     string
	school string
	class  string
}

func (f *attendanceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.period, "period", "daily", "Grouping period: daily, weekly or monthly")
	cmd.Flags().StringVar(&f.from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.school, "school", "", "School id or \"all\"")
	cmd.Flags().StringVar(&f.class, "class", "", "Class name or \"all\"")
}

// query mirrors what the HTTP handler binds from the request.
func (f *attendanceFlags) query() (dto.AttendanceReportQuery, url.Values) {
	q := dto.AttendanceReportQuery{
		Period:    f.period,
		StartDate: f.from,
		EndDate:   f.to,
		SchoolID:  f.school,
		ClassName: f.class,
	}
	raw := url.Values{}
	set := func(key, value string) {
		if value != "" {
			raw.Set(key, value)
		}
	}
	set("period", q.Period)
	set("start_date", q.StartDate)
	set("end_date", q.EndDate)
	set("school_id", q.SchoolID)
	set("class_name", q.ClassName)
	return q, raw
}

func attendanceRecord(r dto.AttendanceRow) map[string]any {
	return map[string]any{
		"start_date": r.StartDate,
		"end_date":   r.EndDate,
		"school":     r.SchoolName,
		"class":      r.ClassName,
		"start":      strconv.Itoa(r.TotalStart),
		"end":        strconv.Itoa(r.TotalEnd),
		"rate":       fmt.Sprintf("%.0f%%", r.AttendanceRate),
		"records":    strconv.Itoa(r.Count),
	}
}

var attendanceColumns = []string{"start_date", "end_date", "school", "class", "start", "end", "rate", "records"}

func newAttendanceCmd(flags *globalFlags) *cobra.Command {
	filters := &attendanceFlags{}
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Print the attendance report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			q, raw := filters.query()
			rows, period, err := s.app.Attendance.Rows(s.ctx, s.principal, q, raw)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"period": period, "rows": rows})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no attendance records")
				return nil
			}
			out := make([]map[string]any, 0, len(rows))
			for _, r := range rows {
				out = append(out, attendanceRecord(r))
			}
			return writeTable(cmd.OutOrStdout(), out, attendanceColumns)
		},
	}
	filters.bind(cmd)
	return cmd
}
