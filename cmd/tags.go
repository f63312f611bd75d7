package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

func newTagsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and reorganize tags across the library",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tag in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			tags, err := service.ListTags()
			if err != nil {
				return err
			}
			for _, tag := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show how many papers carry each tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			stats, err := service.TagStats()
			if err != nil {
				return err
			}
			printTagStats(cmd.OutOrStdout(), stats)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rename OLD NEW",
		Short:   "Rename a tag on every paper that has it",
		Example: `  papershelf tags rename ml machine-learning`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			stats, err := service.RenameTag(args[0], args[1])
			if err != nil {
				return err
			}
			printTagStats(cmd.OutOrStdout(), stats)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete TAG",
		Short: "Remove a tag from every paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			stats, err := service.DeleteTag(args[0])
			if err != nil {
				return err
			}
			printTagStats(cmd.OutOrStdout(), stats)
			return nil
		},
	})

	return cmd
}

func printTagStats(w io.Writer, stats []models.TagStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No tags")
		return
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{s.Tag, strconv.Itoa(s.Count)})
	}
	fmt.Fprintln(w, renderTable([]string{"Tag", "Papers"}, rows, []columnAlignment{alignLeft, alignRight}))
}
