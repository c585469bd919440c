package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/indicator"
)

func testDefinitions() []indicator.Definition {
	return []indicator.Definition{
		{Code: "supermarket", Name: "Supermarket", Group: "food", ThresholdM: 800},
		{Code: "bus_stop", Name: "Bus stop", Group: "transport", ThresholdM: 400},
	}
}

func TestFormatCatalogTable(t *testing.T) {
	var buf bytes.Buffer
	formatCatalogTable(&buf, testDefinitions())
	out := buf.String()

	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "THRESHOLD_M")
	assert.Contains(t, out, "supermarket")
	assert.Contains(t, out, "800")
	assert.Contains(t, out, "bus_stop")
	assert.Contains(t, out, "400")
}

func TestWriteCatalogCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCatalogCSV(&buf, testDefinitions()))

	want := "code,name,group,threshold_m\n" +
		"supermarket,Supermarket,food,800\n" +
		"bus_stop,Bus stop,transport,400\n"
	assert.Equal(t, want, buf.String())
}
