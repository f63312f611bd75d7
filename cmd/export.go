package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/papershelf/internal/export"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the library to Parquet or YAML",
		Long: `Writes one row per readable paper: id, title, authors, year, journal, tags,
image and figure counts, cover image, upload time and reading time.`,
		Example: `  # Format inferred from the extension
  papershelf export --output library.parquet

  # Explicit format
  papershelf export --output library.txt --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f export.Format
			var err error
			if format != "" {
				f, err = export.ParseFormat(format)
			} else {
				f, err = export.FormatFromPath(output)
			}
			if err != nil {
				return err
			}

			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			records, err := service.Records()
			if err != nil {
				return fmt.Errorf("failed to read library: %w", err)
			}

			rows := export.Rows(records)
			if err := export.WriteFile(output, f, rows, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d papers to %s\n", len(rows), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")
	cmd.Flags().StringVar(&format, "format", "", "parquet or yaml (default: from the output extension)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newInspectCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the rows of a Parquet export",
		Example: `  papershelf inspect library.parquet
  papershelf inspect library.parquet --limit 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := export.ReadParquet(args[0])
			if err != nil {
				return err
			}
			total := len(rows)
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{
					r.ID,
					r.Title,
					strings.Join(r.Authors, ", "),
					r.Year,
					strings.Join(r.Tags, ", "),
					strconv.Itoa(r.ImageCount),
					strconv.Itoa(r.FigureCount),
					r.Cover,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Authors", "Year", "Tags", "Images", "Figures", "Cover"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Showing %d of %d rows from %s\n", len(rows), total, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of rows to show (0 for all)")

	return cmd
}
