package export

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

func sampleTable() *models.Table {
	tbl := models.NewTable("coins", "Rank", "Symbol", "Price", "Listed")
	tbl.AddRow(1, "BTC", 64000.5, time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC))
	tbl.AddRow(2, "ETH", math.NaN(), time.Date(2015, 7, 30, 0, 0, 0, 0, time.UTC))
	return tbl
}

func newExporter(t *testing.T) *Exporter {
	e := New(filepath.Join(t.TempDir(), "exports"), zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return e
}

func TestParseFormats(t *testing.T) {
	formats, err := ParseFormats(" CSV, json,csv,,xlsx ")
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "json", "xlsx"}, formats)

	none, err := ParseFormats("")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ParseFormats("csv,pdf")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))
}

func TestTableWritesEveryFormat(t *testing.T) {
	e := newExporter(t)

	paths, err := e.Table(sampleTable(), "crypto coins", []string{FormatCSV, FormatJSON, FormatXLSX})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "crypto_coins_20240501_093000.csv", filepath.Base(paths[0]))
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	records, err := gocsv.CSVToMaps(f)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "64000.5", records[0]["Price"])
	assert.Equal(t, "2009-01-03", records[0]["Listed"])
	assert.Equal(t, "", records[1]["Price"], "NaN is an empty cell")

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	var recs []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Equal(t, "ETH", recs[1]["Symbol"])
	assert.Nil(t, recs[1]["Price"])

	x, err := excelize.OpenFile(paths[2])
	require.NoError(t, err)
	defer x.Close()
	rows, err := x.GetRows("coins")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Rank", "Symbol", "Price", "Listed"}, rows[0])
	assert.Equal(t, "BTC", rows[1][1])
	assert.Equal(t, "2015-07-30", rows[2][3])
}

func TestTableWithoutFormatsWritesNothing(t *testing.T) {
	e := newExporter(t)
	paths, err := e.Table(sampleTable(), "coins", nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NoDirExists(t, e.Dir)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet1", sheetName(""))
	assert.Equal(t, "a_b", sheetName("a/b"))
	assert.Len(t, sheetName("a_very_long_table_name_that_exceeds_excel_limits"), 31)
}

func TestCharts(t *testing.T) {
	e := newExporter(t)

	pie, err := PieChart("Weights", []Slice{{"AAPL", 0.5}, {"MSFT", 0.3}, {"CASH", 0}, {"XOM", 0.2}})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), pie[:4])
	path, err := e.SavePNG("po hrp pie", pie)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = PieChart("Empty", []Slice{{"A", 0}})
	assert.Error(t, err)

	points := []Point{{Risk: 0.1, Return: 0.05}, {Risk: 0.15, Return: 0.08}, {Risk: 0.2, Return: 0.1}}
	random := []Point{{Risk: 0.12, Return: 0.03}, {Risk: 0.18, Return: 0.07}}
	tangency := &Point{Risk: 0.15, Return: 0.08, Sharpe: 0.4}
	frontier, err := FrontierChart("Frontier", "MV", points, random, tangency)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), frontier[:4])

	_, err = FrontierChart("Bad", "MV", nil, random, nil)
	assert.Error(t, err)
}

func TestFrontierSeries(t *testing.T) {
	points := []Point{{Risk: 0.2, Return: 0.1}, {Risk: 0.1, Return: 0.05}}
	random := []Point{{Risk: 0.1, Return: 0.02}, {Risk: 0.1, Return: 0.04}, {Risk: 0.3, Return: 0.06}}
	tangency := &Point{Risk: 0.2, Return: 0.1, Sharpe: 0.5}

	labels, names, series, err := frontierSeries("CVaR", points, random, tangency)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Len(t, labels, frontierBands)
	assert.Equal(t, "10.0%", labels[0])
	assert.Equal(t, "30.0%", labels[frontierBands-1])
	assert.Contains(t, names[0], "CVaR")
	assert.Equal(t, "Random portfolios (3)", names[1])
	assert.Equal(t, "Tangency 20.0% / 10.0%", names[2])

	frontier, best, cml := series[0], series[1], series[2]
	assert.InDelta(t, 5, frontier[0], 1e-9)
	assert.InDelta(t, 10, frontier[frontierBands-1], 1e-9, "held beyond the last frontier point")
	assert.InDelta(t, 4, best[0], 1e-9, "best random portfolio in the band")
	assert.InDelta(t, 6, best[frontierBands-1], 1e-9)
	assert.InDelta(t, 5, cml[0], 1e-9, "capital market line through the tangency portfolio")
	assert.InDelta(t, 15, cml[frontierBands-1], 1e-9)

	_, names, series, err = frontierSeries("MV", points, nil, nil)
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Len(t, names, 1)
}
