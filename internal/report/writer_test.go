package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/walkshed/access-cli/internal/model"
)

func sampleReport() *Report {
	return &Report{
		RunID:    "run-1",
		Category: "supermarket",
		Level:    model.AreaLevelSA1,
		Weight:   model.WeightDwellings,
		Metric:   model.MetricSoft,
		Areas: []model.AreaScore{
			{AreaCode: "sa1-100", Locations: 1250, Scored: 1200, TotalWeight: 5800, MeanScore: ptrFloat64(0.8123)},
			{AreaCode: "sa1-200", Locations: 4, Scored: 0, TotalWeight: 62},
		},
		GeneratedAt: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport()))

	want := "sa1,locations,scored,total_dwellings,mean_soft_score\n" +
		"sa1-100,1250,1200,5800,0.8123\n" +
		"sa1-200,4,0,62,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "SA1")
	assert.Contains(t, out, "sa1-100")
	// Counts are grouped for readability.
	assert.Contains(t, out, "1,250")
	assert.Contains(t, out, "5,800")
	assert.Contains(t, out, "0.8123")
	// Missing means render as a dash.
	assert.Regexp(t, `sa1-200\s+4\s+0\s+62\s+-`, out)
	assert.Contains(t, out, "2 areas, 1,254 locations (1,200 scored)")
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup.xlsx")
	require.NoError(t, WriteXLSX(path, sampleReport()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "supermarket", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	assert.Equal(t, "sa1", header.Cells[0].String())
	assert.Equal(t, "mean_soft_score", header.Cells[4].String())

	first := sheet.Rows[1]
	assert.Equal(t, "sa1-100", first.Cells[0].String())
	locations, err := first.Cells[1].Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1250), locations)
	mean, err := first.Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.8123, mean, 1e-9)

	// The missing mean stays an empty cell.
	second := sheet.Rows[2]
	assert.Equal(t, "", second.Cells[4].String())
}

func TestWriteXLSX_TruncatesLongSheetName(t *testing.T) {
	rep := sampleReport()
	rep.Category = "a_very_long_category_code_that_keeps_going"

	path := filepath.Join(t.TempDir(), "rollup.xlsx")
	require.NoError(t, WriteXLSX(path, rep))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Name, 31)
}
