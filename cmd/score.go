package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/score"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score an ad-hoc distance list",
	Long:  "Computes the closest distance, count within threshold, and hard and soft threshold scores for a comma-separated list of network distances.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("score"); err != nil {
			return err
		}

		distancesArg, _ := cmd.Flags().GetString("distances")
		category, _ := cmd.Flags().GetString("category")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		nearest, _ := cmd.Flags().GetFloat64("nearest")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		distances, err := parseDistances(distancesArg)
		if err != nil {
			return err
		}

		if threshold == 0 {
			if category == "" {
				return eris.New("score: --threshold or --category is required")
			}
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			def, ok := catalog.Lookup(category)
			if !ok {
				return eris.Errorf("score: unknown category %q", category)
			}
			threshold = def.ThresholdM
		}

		set := model.DistanceSet{Category: category, Distances: distances}
		if cmd.Flags().Changed("nearest") {
			set.NearestM = &nearest
		}

		res, err := scoreDistances(set, threshold)
		if err != nil {
			return err
		}

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrapf(err, "score: create %s", output)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		switch format {
		case "table":
			formatScoreTable(out, res)
			return nil
		case "csv":
			return writeScoreCSV(out, res)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		default:
			return eris.Errorf("score: unknown format %q (want table, csv, or json)", format)
		}
	},
}

func init() {
	scoreCmd.Flags().String("distances", "", "comma-separated network distances in metres")
	scoreCmd.Flags().String("category", "", "catalog category supplying the threshold")
	scoreCmd.Flags().Float64("threshold", 0, "threshold in metres (overrides the category threshold)")
	scoreCmd.Flags().Float64("nearest", 0, "nearest instance beyond the search radius, in metres")
	scoreCmd.Flags().String("format", "table", "output format: table, csv, or json")
	scoreCmd.Flags().String("output", "", "write to file instead of stdout")
	rootCmd.AddCommand(scoreCmd)
}

// scoreResult is one scored distance list, shaped for display. Nil
// fields stay null in JSON: no reachable destination is unknown, not
// zero.
type scoreResult struct {
	Category    string   `json:"category,omitempty"`
	ThresholdM  float64  `json:"threshold_m"`
	ClosestM    *float64 `json:"closest_m"`
	CountWithin int      `json:"count_within"`
	HardScore   *float64 `json:"hard_score"`
	SoftScore   *float64 `json:"soft_score"`
}

func scoreDistances(set model.DistanceSet, threshold float64) (*scoreResult, error) {
	count, err := score.CountWithin(set.Distances, threshold)
	if err != nil {
		return nil, err
	}
	closest := set.EffectiveClosest()
	hard, err := score.HardThreshold(closest, threshold)
	if err != nil {
		return nil, err
	}
	soft, err := score.SoftThreshold(closest, threshold)
	if err != nil {
		return nil, err
	}
	return &scoreResult{
		Category:    set.Category,
		ThresholdM:  threshold,
		ClosestM:    closest,
		CountWithin: count,
		HardScore:   hard,
		SoftScore:   soft,
	}, nil
}

// parseDistances splits a comma-separated distance list. An empty
// argument is a valid empty list.
func parseDistances(arg string) ([]float64, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}
	parts := strings.Split(arg, ",")
	distances := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Errorf("score: invalid distance %q", strings.TrimSpace(p))
		}
		if v < 0 {
			return nil, eris.Errorf("score: distance must not be negative, got %v", v)
		}
		distances = append(distances, v)
	}
	return distances, nil
}

// formatScoreTable writes one result as an aligned key/value table.
func formatScoreTable(out io.Writer, res *scoreResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.Category != "" {
		_, _ = fmt.Fprintf(w, "Category:\t%s\n", res.Category)
	}
	_, _ = fmt.Fprintf(w, "Threshold:\t%.0f m\n", res.ThresholdM)
	_, _ = fmt.Fprintf(w, "Closest:\t%s\n", formatMetres(res.ClosestM))
	_, _ = fmt.Fprintf(w, "Within threshold:\t%d\n", res.CountWithin)
	_, _ = fmt.Fprintf(w, "Hard score:\t%s\n", formatScoreValue(res.HardScore))
	_, _ = fmt.Fprintf(w, "Soft score:\t%s\n", formatScoreValue(res.SoftScore))
	_ = w.Flush()
}

func writeScoreCSV(out io.Writer, res *scoreResult) error {
	cw := csv.NewWriter(out)
	header := []string{"category", "threshold_m", "closest_m", "count_within", "hard_score", "soft_score"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write csv")
	}
	rec := []string{
		res.Category,
		strconv.FormatFloat(res.ThresholdM, 'f', -1, 64),
		formatCSVValue(res.ClosestM),
		strconv.Itoa(res.CountWithin),
		formatCSVValue(res.HardScore),
		formatCSVValue(res.SoftScore),
	}
	if err := cw.Write(rec); err != nil {
		return eris.Wrap(err, "score: write csv")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "score: write csv")
	}
	return nil
}

func formatMetres(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f m", *v)
}

func formatScoreValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

// formatCSVValue renders a nullable number as an empty CSV field.
func formatCSVValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
