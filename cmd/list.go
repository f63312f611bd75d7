package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List papers in the library",
		Long:  `Lists every readable paper in the library, most recently changed first.`,
		Example: `  papershelf list
  papershelf list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			summaries, err := service.List()
			if err != nil {
				return fmt.Errorf("failed to list library: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "Library is empty")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.ID,
					s.Title,
					strings.Join(s.Authors, ", "),
					s.Year,
					strings.Join(s.CustomTags, ", "),
					s.ReadingTime,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Authors", "Year", "Tags", "Read"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "%d papers\n", len(summaries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print summaries as JSON")

	return cmd
}
