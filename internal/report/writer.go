package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// reportHeader returns the column headers for a report's grain.
func reportHeader(rep *Report) []string {
	return []string{
		string(rep.Level),
		"locations",
		"scored",
		"total_" + string(rep.Weight),
		"mean_" + string(rep.Metric) + "_score",
	}
}

func formatScore(score *float64, missing string) string {
	if score == nil {
		return missing
	}
	return strconv.FormatFloat(*score, 'f', 4, 64)
}

// WriteTable renders the report as an aligned text table.
func WriteTable(w io.Writer, rep *Report) error {
	p := message.NewPrinter(language.English)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s  category=%s  level=%s  weight=%s  metric=%s\n\n",
		rep.RunID, rep.Category, rep.Level, rep.Weight, rep.Metric)

	fmt.Fprintf(tw, "%s\tLOCATIONS\tSCORED\tWEIGHT\tMEAN\n", strings.ToUpper(string(rep.Level)))

	var totalLocations, totalScored int64
	for _, a := range rep.Areas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.AreaCode,
			p.Sprintf("%d", a.Locations),
			p.Sprintf("%d", a.Scored),
			p.Sprintf("%.0f", a.TotalWeight),
			formatScore(a.MeanScore, "-"),
		)
		totalLocations += a.Locations
		totalScored += a.Scored
	}

	fmt.Fprintf(tw, "\n%s\n",
		p.Sprintf("%d areas, %d locations (%d scored)", len(rep.Areas), totalLocations, totalScored))

	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush table")
	}
	return nil
}

// WriteCSV renders the report as CSV with a header row. Areas without
// a mean score get an empty field.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(reportHeader(rep)); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, a := range rep.Areas {
		rec := []string{
			a.AreaCode,
			strconv.FormatInt(a.Locations, 10),
			strconv.FormatInt(a.Scored, 10),
			strconv.FormatFloat(a.TotalWeight, 'f', -1, 64),
			formatScore(a.MeanScore, ""),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "report: write csv row for area %s", a.AreaCode)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return nil
}

// WriteXLSX writes the report as a single-sheet workbook at path.
func WriteXLSX(path string, rep *Report) error {
	f := xlsx.NewFile()

	// The XLSX format caps sheet names at 31 characters.
	name := rep.Category
	if len(name) > 31 {
		name = name[:31]
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", name)
	}

	header := sheet.AddRow()
	for _, h := range reportHeader(rep) {
		header.AddCell().SetString(h)
	}

	for _, a := range rep.Areas {
		row := sheet.AddRow()
		row.AddCell().SetString(a.AreaCode)
		row.AddCell().SetInt64(a.Locations)
		row.AddCell().SetInt64(a.Scored)
		row.AddCell().SetFloat(a.TotalWeight)
		cell := row.AddCell()
		if a.MeanScore != nil {
			cell.SetFloat(*a.MeanScore)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}
