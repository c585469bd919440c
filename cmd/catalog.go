package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/walkshed/access-cli/internal/indicator"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List or validate indicator catalogs",
	Long:  "Lists the active indicator catalog, or validates a catalog file with --validate and reports every definition problem.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		validatePath, _ := cmd.Flags().GetString("validate")
		format, _ := cmd.Flags().GetString("format")

		if validatePath != "" {
			cat, err := indicator.Load(validatePath)
			if err != nil {
				return err
			}
			fmt.Printf("OK: %d definitions\n", cat.Len())
			return nil
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		switch format {
		case "table":
			formatCatalogTable(os.Stdout, cat.Definitions())
			return nil
		case "csv":
			return writeCatalogCSV(os.Stdout, cat.Definitions())
		default:
			return eris.Errorf("catalog: unknown format %q (want table or csv)", format)
		}
	},
}

func init() {
	catalogCmd.Flags().String("validate", "", "validate a catalog YAML file instead of listing")
	catalogCmd.Flags().String("format", "table", "output format: table or csv")
	rootCmd.AddCommand(catalogCmd)
}

func formatCatalogTable(out io.Writer, defs []indicator.Definition) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME\tGROUP\tTHRESHOLD_M")
	for _, def := range defs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\n", def.Code, def.Name, def.Group, def.ThresholdM)
	}
	_ = w.Flush()
}

func writeCatalogCSV(out io.Writer, defs []indicator.Definition) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"code", "name", "group", "threshold_m"}); err != nil {
		return eris.Wrap(err, "catalog: write csv")
	}
	for _, def := range defs {
		rec := []string{def.Code, def.Name, def.Group, strconv.FormatFloat(def.ThresholdM, 'f', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "catalog: write csv")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "catalog: write csv")
	}
	return nil
}
