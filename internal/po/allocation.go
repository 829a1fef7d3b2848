package po

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"research-terminal/internal/errors"
	"research-terminal/pkg/utils"
)

// AllocationFile is the content of a symbols spreadsheet: tickers plus per-ticker categories.
type AllocationFile struct {
	Symbols    []string
	Categories map[string]map[string]string
}

// symbolHeaders ranks the accepted symbol column names; a lower rank wins when a sheet has several.
var symbolHeaders = map[string]int{"TICKER": 1, "TICKERS": 2, "SYMBOL": 3, "SYMBOLS": 4}

// LoadAllocationFile reads a CSV or XLSX sheet with a Ticker column and optional category columns.
func LoadAllocationFile(path string) (*AllocationFile, error) {
	var records []map[string]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSVRecords(path)
	case ".xlsx":
		records, err = readXLSXRecords(path)
	default:
		return nil, fmt.Errorf("%w: %s (expected .csv or .xlsx)", errors.ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return parseAllocationRecords(records)
}

func readCSVRecords(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return gocsv.CSVToMaps(f)
}

func readXLSXRecords(path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrNoData
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.ErrNoData
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseAllocationRecords(records []map[string]string) (*AllocationFile, error) {
	out := &AllocationFile{Categories: make(map[string]map[string]string)}
	seen := make(map[string]bool)

	for _, rec := range records {
		var symbol string
		rank := 0
		for h, v := range rec {
			r, ok := symbolHeaders[utils.SnakeUpper(h)]
			if !ok || (rank != 0 && r > rank) {
				continue
			}
			if sym := NormalizeSymbol(v); sym != "" {
				symbol, rank = sym, r
			}
		}
		if symbol == "" {
			continue
		}
		if !seen[symbol] {
			seen[symbol] = true
			out.Symbols = append(out.Symbols, symbol)
		}

		for h, v := range rec {
			name := utils.SnakeUpper(h)
			if _, ok := symbolHeaders[name]; ok || name == "" || strings.TrimSpace(v) == "" {
				continue
			}
			if out.Categories[name] == nil {
				out.Categories[name] = make(map[string]string)
			}
			out.Categories[name][symbol] = strings.TrimSpace(v)
		}
	}

	if len(out.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no Ticker column or no rows", errors.ErrMissingSymbols)
	}
	return out, nil
}

// Allocation is one line of an optimized portfolio: its weight and the amount it receives.
type Allocation struct {
	Symbol string          `csv:"Ticker"`
	Weight float64         `csv:"Weight"`
	Amount decimal.Decimal `csv:"Amount"`
}

// Allocate splits value across the weights, rounding to cents. The rounding residual goes to
// the largest position so the amounts always add up to value.
func Allocate(weights map[string]float64, value float64) []Allocation {
	syms := sortedByWeight(weights)
	var total float64
	for _, s := range syms {
		if weights[s] > 0 {
			total += weights[s]
		}
	}
	if total == 0 {
		return nil
	}

	budget := decimal.NewFromFloat(value).Round(2)
	out := make([]Allocation, 0, len(syms))
	assigned := decimal.Zero
	for _, s := range syms {
		w := weights[s] / total
		if w <= 0 {
			continue
		}
		amt := budget.Mul(decimal.NewFromFloat(w)).Round(2)
		assigned = assigned.Add(amt)
		out = append(out, Allocation{Symbol: s, Weight: w, Amount: amt})
	}
	if len(out) > 0 {
		out[0].Amount = out[0].Amount.Add(budget.Sub(assigned))
	}
	return out
}

// WriteAllocationFile writes allocations as CSV (gocsv) or XLSX, chosen by extension.
func WriteAllocationFile(path string, allocations []Allocation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return gocsv.MarshalFile(&allocations, f)
	case ".xlsx":
		f := excelize.NewFile()
		defer f.Close()
		sheet := "Allocation"
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Ticker", "Weight", "Amount"}); err != nil {
			return err
		}
		for i, a := range allocations {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			amount, _ := a.Amount.Float64()
			if err := f.SetSheetRow(sheet, cell, &[]interface{}{a.Symbol, a.Weight, amount}); err != nil {
				return err
			}
		}
		return f.SaveAs(path)
	default:
		return fmt.Errorf("%w: %s (expected .csv or .xlsx)", errors.ErrUnsupportedFormat, path)
	}
}
