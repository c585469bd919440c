package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/walkshed/access-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and run health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		lookback, _ := cmd.Flags().GetInt("lookback")
		asJSON, _ := cmd.Flags().GetBool("json")
		if lookback == 0 {
			lookback = cfg.Monitor.LookbackRuns
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback", 0, "recent runs feeding the failure rate (default: monitor.lookback_runs config)")
	statusCmd.Flags().Bool("json", false, "print the raw snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes a human-readable status summary to w.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Locations:\t%d\n", snap.Locations)
	_, _ = fmt.Fprintf(w, "Distance sets:\t%d\n", snap.TotalDistanceSets())
	for _, cat := range sortedKeys(snap.DistanceSets) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", cat, snap.DistanceSets[cat])
	}
	for _, status := range sortedKeys(snap.RunsByStatus) {
		_, _ = fmt.Fprintf(w, "Runs %s:\t%d\n", status, snap.RunsByStatus[status])
	}
	if snap.RecentFinished > 0 {
		_, _ = fmt.Fprintf(w, "Failure rate (last %d runs):\t%.0f%%\n", snap.LookbackRuns, snap.FailureRate()*100)
	}
	if snap.LatestRun != nil {
		_, _ = fmt.Fprintf(w, "Latest completed run:\t%s\n", snap.LatestRun.ID)
		_, _ = fmt.Fprintf(w, "  Scores:\t%d\n", snap.LatestRunScores)
		if snap.LatestRun.FinishedAt != nil {
			_, _ = fmt.Fprintf(w, "  Finished:\t%s\n", snap.LatestRun.FinishedAt.Format(time.RFC3339))
		}
	}
	_ = w.Flush()
}

// sortedKeys returns map keys in sorted order for stable output.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
