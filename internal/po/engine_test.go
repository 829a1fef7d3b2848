package po

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"research-terminal/internal/errors"
)

func TestNewEngineRequiresSymbols(t *testing.T) {
	_, err := NewEngine(EngineOptions{})
	assert.True(t, errors.Is(err, errors.ErrMissingSymbols))

	_, err = NewEngine(EngineOptions{Symbols: []string{" ", ""}})
	assert.True(t, errors.Is(err, errors.ErrMissingSymbols))
}

func TestEngineSymbolsAreNormalised(t *testing.T) {
	e, err := NewEngine(EngineOptions{Symbols: []string{"aapl", " MSFT", "AAPL", "btc-usd"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "BTC-USD"}, e.GetSymbols())

	syms := e.GetSymbols()
	syms[0] = "X"
	assert.Equal(t, "AAPL", e.GetSymbols()[0], "GetSymbols returns a copy")
}

func TestEngineWeights(t *testing.T) {
	e := newTestEngine("AAPL", "MSFT", "GOOG")

	err := e.SetWeights(map[string]float64{"AAPL": 0.2, "TSLA": 0.8})
	assert.True(t, errors.Is(err, errors.ErrUnknownSymbol))
	assert.Empty(t, e.GetWeightsMap(), "rejected weights leave the engine unchanged")

	require.NoError(t, e.SetWeights(map[string]float64{"aapl": 0.2, "MSFT": 0.5, "GOOG": 0.3}))
	assert.InDelta(t, 0.5, e.GetWeightsMap()["MSFT"], 1e-12)

	tbl := e.GetWeights()
	assert.Equal(t, []string{"Symbol", "Weight"}, tbl.Headers)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "MSFT", tbl.Rows[0][0], "largest weight first")
	assert.Equal(t, "AAPL", tbl.Rows[2][0])
}

func TestEngineSetParamsIsAtomic(t *testing.T) {
	e := newTestEngine("AAPL")
	require.NoError(t, e.SetParams(map[string]interface{}{"historic_period": "1y", "long_allocation": "5000"}))
	assert.Equal(t, 5000.0, e.GetValue())

	err := e.SetParams(map[string]interface{}{"historic_period": "2y", "linkage": "centroid"})
	assert.True(t, errors.Is(err, errors.ErrInvalidChoice))
	assert.Equal(t, "1y", e.GetParams()["historic_period"], "a failed call stores nothing")

	// native names are stored under the template name
	require.NoError(t, e.SetParams(map[string]interface{}{"period": "ytd"}))
	assert.Equal(t, "ytd", e.GetParams()["historic_period"])
}

func TestEngineGetValueDefault(t *testing.T) {
	assert.Equal(t, 1.0, newTestEngine("AAPL").GetValue())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const allocationCSV = `Ticker,Sector,Asset Class,Current Invested Amount
AAPL,Technology,Equity,"6,000"
MSFT,Technology,Equity,3000
XOM,Energy,Equity,1000
`

func TestEngineFromAllocationFile(t *testing.T) {
	path := writeFile(t, "portfolio.csv", allocationCSV)

	e, err := NewEngine(EngineOptions{SymbolsFile: path, Symbols: []string{"gld", "AAPL"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM", "GLD"}, e.GetSymbols())
	assert.Equal(t, []string{"ASSET_CLASS", CurrentInvestedAmount, "SECTOR"}, e.GetCategories())
}

func TestGetCategoryTable(t *testing.T) {
	e, err := NewEngine(EngineOptions{SymbolsFile: writeFile(t, "portfolio.csv", allocationCSV)})
	require.NoError(t, err)
	require.NoError(t, e.SetWeights(map[string]float64{"AAPL": 0.375, "MSFT": 0.125, "XOM": 0.5}))

	_, err = e.GetCategoryTable("country")
	assert.True(t, errors.Is(err, errors.ErrUnknownCategory))

	tbl, err := e.GetCategoryTable("sector")
	require.NoError(t, err)
	assert.Equal(t, []string{"SECTOR", "Symbol", "Weight", "Category Weight", "Current", "Category Current"}, tbl.Headers)
	require.Equal(t, 3, tbl.Len())

	// Technology totals 0.5 and ties Energy, so the label order decides
	assert.Equal(t, "Energy", tbl.Rows[0][0])
	assert.Equal(t, "AAPL", tbl.Rows[1][1])
	assert.InDelta(t, 0.5, tbl.Rows[1][3].(float64), 1e-12)
	assert.InDelta(t, 0.6, tbl.Rows[1][4].(float64), 1e-12, "current weight from invested amounts")
	assert.InDelta(t, 0.9, tbl.Rows[2][5].(float64), 1e-12)
}

func TestGetCategoryTableBreaksTiesBySymbol(t *testing.T) {
	csv := "Ticker,Sector\nZZZ,Technology\nMMM,Technology\nAAA,Technology\nXOM,Energy\n"
	e, err := NewEngine(EngineOptions{SymbolsFile: writeFile(t, "ties.csv", csv)})
	require.NoError(t, err)
	require.NoError(t, e.SetWeights(map[string]float64{"ZZZ": 0.25, "MMM": 0.25, "AAA": 0.25, "XOM": 0.25}))

	for i := 0; i < 20; i++ {
		tbl, err := e.GetCategoryTable("sector")
		require.NoError(t, err)
		assert.Equal(t, []string{"SECTOR", "Symbol", "Weight", "Category Weight"}, tbl.Headers)
		require.Equal(t, 4, tbl.Len())
		var syms []string
		for _, row := range tbl.Rows {
			syms = append(syms, row[1].(string))
		}
		assert.Equal(t, []string{"AAA", "MMM", "ZZZ", "XOM"}, syms)
	}
}

func TestParseAllocationRecordsTickerWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		file, err := parseAllocationRecords([]map[string]string{
			{"Symbol": "msft", "Ticker": "aapl", "Sector": "Technology"},
			{"Symbols": "XOM", "Tickers": "CVX"},
			{"Symbol": "GLD", "Ticker": " "},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "CVX", "GLD"}, file.Symbols)
		assert.Equal(t, map[string]string{"AAPL": "Technology"}, file.Categories["SECTOR"])
		assert.NotContains(t, file.Categories, "SYMBOL")
	}
}

func TestLoadAllocationFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Symbol", "Country"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"infy.ns", "India"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"AAPL", "United States"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	alloc, err := LoadAllocationFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY.NS", "AAPL"}, alloc.Symbols)
	assert.Equal(t, "India", alloc.Categories["COUNTRY"]["INFY.NS"])
}

func TestLoadAllocationFileErrors(t *testing.T) {
	_, err := LoadAllocationFile(writeFile(t, "portfolio.txt", "AAPL"))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))

	_, err = LoadAllocationFile(writeFile(t, "portfolio.csv", "Name,Sector\nApple,Technology\n"))
	assert.True(t, errors.Is(err, errors.ErrMissingSymbols))
}

func TestAllocateAddsUpToValue(t *testing.T) {
	weights := map[string]float64{"A": 1, "B": 1, "C": 1, "D": 0}
	allocs := Allocate(weights, 100)
	require.Len(t, allocs, 3, "zero weights get no allocation")

	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
		assert.InDelta(t, 1.0/3, a.Weight, 1e-12)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)), "total = %s", total)
	assert.Nil(t, Allocate(map[string]float64{"A": 0}, 100))
}

func TestWriteAllocationFileRoundTrip(t *testing.T) {
	allocs := Allocate(map[string]float64{"AAPL": 0.6, "MSFT": 0.4}, 10000)
	dir := t.TempDir()

	for _, name := range []string{"out.csv", "out.xlsx"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteAllocationFile(path, allocs))

		alloc, err := LoadAllocationFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, []string{"AAPL", "MSFT"}, alloc.Symbols, name)
		assert.Contains(t, alloc.Categories, "AMOUNT", name)
	}

	err := WriteAllocationFile(filepath.Join(dir, "out.json"), allocs)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))
}

func TestParamsFile(t *testing.T) {
	path := writeFile(t, "preset.ini", `[OPENBB]
historic_period = 1y
return_frequency = w
risk_measure = cvar

[ADVANCED]
amount_clusters = 3
tangency = true
unknown_knob = 7
`)

	params, unknown, err := ReadParamsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown_knob"}, unknown)
	assert.Equal(t, "1y", params["historic_period"])
	assert.Equal(t, "CVaR", params["risk_measure"])
	assert.Equal(t, 3, params["amount_clusters"])
	assert.Equal(t, true, params["tangency"])

	e := newTestEngine("AAPL")
	require.NoError(t, e.SetParamsFromFile(path))
	assert.Equal(t, "w", e.GetParams()["return_frequency"])

	out := filepath.Join(t.TempDir(), "saved.ini")
	require.NoError(t, WriteParamsFile(out, e.GetParams()))
	again, unknown, err := ReadParamsFile(out)
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Equal(t, e.GetParams(), again)
}

func TestParamsFileErrors(t *testing.T) {
	_, _, err := ReadParamsFile(writeFile(t, "preset.toml", "x = 1"))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))

	_, _, err = ReadParamsFile(writeFile(t, "bad.ini", "[p]\nlinkage = centroid\n"))
	assert.True(t, errors.Is(err, errors.ErrInvalidChoice))
}
