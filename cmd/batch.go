package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/walkshed/access-cli/internal/batch"
	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/resilience"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score every stored distance set",
	Long:  "Runs a scoring pass over the stored distance sets, one worker per category, and records the outcome as a run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		categoriesArg, _ := cmd.Flags().GetString("categories")
		label, _ := cmd.Flags().GetString("label")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")

		if concurrency == 0 {
			concurrency = cfg.Batch.Concurrency
		}
		if chunkSize == 0 {
			chunkSize = cfg.Batch.ChunkSize
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		ev := batch.New(st, catalog, batch.Config{
			Concurrency: concurrency,
			ChunkSize:   chunkSize,
			Retry: resilience.FromRetryConfig(
				cfg.Batch.RetryMaxAttempts,
				cfg.Batch.RetryInitialBackoffMs,
				cfg.Batch.RetryMaxBackoffMs,
				cfg.Batch.RetryMultiplier,
				cfg.Batch.RetryJitter,
			),
			Circuit: resilience.FromCircuitConfig(
				cfg.Batch.CircuitFailureThreshold,
				cfg.Batch.CircuitResetTimeoutSecs,
			),
		})

		run, err := ev.Run(ctx, label, splitList(categoriesArg))
		if err != nil {
			return err
		}

		formatRunSummary(os.Stdout, run)
		return nil
	},
}

func init() {
	batchCmd.Flags().String("categories", "", "comma-separated category codes (default: every catalog category)")
	batchCmd.Flags().String("label", "", "label recorded on the run")
	batchCmd.Flags().Int("concurrency", 0, "category workers (default: batch.concurrency config)")
	batchCmd.Flags().Int("chunk-size", 0, "distance sets per page and persist chunk (default: batch.chunk_size config)")
	rootCmd.AddCommand(batchCmd)
}

// splitList splits a comma-separated flag value, dropping empty parts.
func splitList(arg string) []string {
	if strings.TrimSpace(arg) == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// formatRunSummary writes a one-run summary to w.
func formatRunSummary(out io.Writer, run *model.ScoreRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	if run.Label != "" {
		_, _ = fmt.Fprintf(w, "Label:\t%s\n", run.Label)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Categories:\t%s\n", strings.Join(run.Categories, ", "))
	_, _ = fmt.Fprintf(w, "Scored:\t%d\n", run.Scored)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", run.Failed)
	if run.FinishedAt != nil {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != nil {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", *run.Error)
	}
	_ = w.Flush()
}
