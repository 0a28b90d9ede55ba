package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/atis-gateway/pkg/export"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render reports to files",
	}
	cmd.AddCommand(newExportAttendanceCmd(flags))
	return cmd
}

func newExportAttendanceCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		out    string
	)
	filters := &attendanceFlags{}

	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Write the attendance report as csv, xlsx or pdf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			q, raw := filters.query()
			file, err := s.app.Exports.AttendanceExport(s.ctx, s.principal, q, raw, f)
			if err != nil {
				return err
			}
			if out == "" {
				out = file.Filename
			}
			if err := os.WriteFile(out, file.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(file.Data))
			return nil
		},
	}
	filters.bind(cmd)
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "Output format: csv, xlsx or pdf")
	cmd.Flags().StringVar(&out, "out", "", "Output file (defaults to a dated report name)")
	return cmd
}
