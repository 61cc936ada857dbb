package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/done/internal/export"
)

func newExportCmd(f *rootFlags) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks to CSV or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("format must be csv or json, got %q", format)
			}
			s, err := openSession(cmd.Context(), f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			path := out
			if path == "" {
				path = fmt.Sprintf("done-export-%s.%s", time.Now().Format("2006-01-02"), format)
			}
			snap := s.svc.Cache().Snapshot()
			if format == "csv" {
				err = export.ToCSV(snap, path)
			} else {
				err = export.ToJSON(snap, path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Exported to", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default done-export-<date>.<format>)")
	return cmd
}
