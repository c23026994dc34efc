package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bdougie/truthlens/internal/models"
	"github.com/bdougie/truthlens/internal/storage"
)

var (
	reportsLimit int
	similarFile  string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect archived forensic reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent archived reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := storage.Open(cmd.Context(), archiveConfig(cfg))
		if err != nil {
			return err
		}
		defer archive.Close()

		lister, ok := archive.(storage.Lister)
		if !ok {
			return eris.Errorf("archive driver %q cannot list reports", cfg.Archive.Driver)
		}
		records, err := lister.ListReports(cmd.Context(), reportsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tVERDICT\tSCORE\tVIDEO")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Verdict, r.Report.OverallScore, r.VideoName)
		}
		return tw.Flush()
	},
}

var reportsSimilarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Find archived reports with a similar detection profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(similarFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", similarFile)
		}
		report, err := readReport(data)
		if err != nil {
			return err
		}

		archive, err := storage.Open(cmd.Context(), archiveConfig(cfg))
		if err != nil {
			return err
		}
		defer archive.Close()

		searcher, ok := archive.(storage.Searcher)
		if !ok {
			return eris.Errorf("archive driver %q does not support similarity search", cfg.Archive.Driver)
		}
		matches, err := searcher.SearchSimilar(cmd.Context(), report, reportsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDISTANCE\tVERDICT\tSCORE\tVIDEO")
		for _, m := range matches {
			fmt.Fprintf(tw, "%s\t%.4f\t%s\t%g\t%s\n",
				m.ID, m.Distance, m.Verdict, m.Report.OverallScore, m.VideoName)
		}
		return tw.Flush()
	},
}

// readReport accepts either a bare report or the output of analyze --json
func readReport(data []byte) (*models.Report, error) {
	var wrapped struct {
		Report json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Report) > 0 {
		data = wrapped.Report
	}
	return models.ParseReport(data)
}

func init() {
	reportsCmd.PersistentFlags().IntVar(&reportsLimit, "limit", 20, "maximum number of reports to show")
	reportsSimilarCmd.Flags().StringVar(&similarFile, "report", "", "path to a report JSON file")
	_ = reportsSimilarCmd.MarkFlagRequired("report")

	reportsCmd.AddCommand(reportsListCmd, reportsSimilarCmd)
	rootCmd.AddCommand(reportsCmd)
}
