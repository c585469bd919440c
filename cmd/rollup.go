package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/report"
	"github.com/walkshed/access-cli/internal/store"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Roll location scores up to areas",
	Long:  "Aggregates one run's location scores into weighted mean scores per area and writes them as a table, CSV, or XLSX workbook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("rollup"); err != nil {
			return err
		}
		ctx := cmd.Context()

		category, _ := cmd.Flags().GetString("category")
		levelArg, _ := cmd.Flags().GetString("level")
		weightArg, _ := cmd.Flags().GetString("weight")
		metricArg, _ := cmd.Flags().GetString("metric")
		runID, _ := cmd.Flags().GetString("run")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		if category == "" {
			return eris.New("rollup: --category is required")
		}
		if levelArg == "" {
			levelArg = cfg.Rollup.Level
		}
		if weightArg == "" {
			weightArg = cfg.Rollup.Weight
		}
		if metricArg == "" {
			metricArg = cfg.Rollup.Metric
		}

		level, err := model.ParseAreaLevel(levelArg)
		if err != nil {
			return err
		}
		weight, err := model.ParseWeightKind(weightArg)
		if err != nil {
			return err
		}
		metric, err := model.ParseScoreMetric(metricArg)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := report.NewBuilder(st, nil).Build(ctx, store.AreaQuery{
			RunID:    runID,
			Category: category,
			Level:    level,
			Weight:   weight,
			Metric:   metric,
		})
		if err != nil {
			return err
		}

		switch format {
		case "xlsx":
			if output == "" {
				return eris.New("rollup: --output is required for xlsx")
			}
			if err := report.WriteXLSX(output, rep); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d areas to %s\n", len(rep.Areas), output)
			return nil
		case "table", "csv":
			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return eris.Wrapf(err, "rollup: create %s", output)
				}
				defer f.Close() //nolint:errcheck
				out = f
			}
			if format == "csv" {
				return report.WriteCSV(out, rep)
			}
			return report.WriteTable(out, rep)
		default:
			return eris.Errorf("rollup: unknown format %q (want table, csv, or xlsx)", format)
		}
	},
}

func init() {
	rollupCmd.Flags().String("category", "", "category code to roll up")
	rollupCmd.Flags().String("level", "", "area level: mb, sa1, sa2, sa3, sa4, suburb, lga, or city (default: rollup.level config)")
	rollupCmd.Flags().String("weight", "", "weighting variable: dwellings or persons (default: rollup.weight config)")
	rollupCmd.Flags().String("metric", "", "score metric: soft or hard (default: rollup.metric config)")
	rollupCmd.Flags().String("run", "", "run ID (default: latest completed run)")
	rollupCmd.Flags().String("format", "table", "output format: table, csv, or xlsx")
	rollupCmd.Flags().String("output", "", "write to file instead of stdout (required for xlsx)")
	rootCmd.AddCommand(rollupCmd)
}
