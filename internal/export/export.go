// Package export writes tables to CSV, JSON and XLSX files and renders charts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/models"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ParseFormats splits a comma separated --export value into known formats.
func ParseFormats(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		switch f {
		case FormatCSV, FormatJSON, FormatXLSX:
		default:
			return nil, fmt.Errorf("%w: %q (use csv, json or xlsx)", errors.ErrUnsupportedFormat, f)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// Exporter writes files into a directory.
type Exporter struct {
	Dir    string
	Logger zerolog.Logger
	Now    func() time.Time
}

// New creates an exporter for dir.
func New(dir string, logger zerolog.Logger) *Exporter {
	return &Exporter{Dir: dir, Logger: logger, Now: time.Now}
}

// FileName builds "<command>_<timestamp>.<ext>".
func (e *Exporter) FileName(command, ext string) string {
	command = strings.NewReplacer(" ", "_", "/", "_", ":", "_").Replace(strings.ToLower(command))
	return filepath.Join(e.Dir, fmt.Sprintf("%s_%s.%s", command, e.Now().Format("20060102_150405"), ext))
}

// Table writes tbl once per format and returns the written paths.
func (e *Exporter) Table(tbl *models.Table, command string, formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		path := e.FileName(command, format)
		var err error
		switch format {
		case FormatCSV:
			err = WriteCSV(path, tbl)
		case FormatJSON:
			err = WriteJSON(path, tbl)
		case FormatXLSX:
			err = WriteXLSX(path, tbl)
		default:
			err = fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, format)
		}
		if err != nil {
			return paths, fmt.Errorf("exporting %s: %w", format, err)
		}
		logging.LogExport(e.Logger, format, path, tbl.Len())
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteCSV writes the table with a header row. Cells use models.FormatCell, except
// floats which keep full precision.
func WriteCSV(path string, tbl *models.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tbl.Headers); err != nil {
		return err
	}
	for _, row := range tbl.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = csvCell(cell)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func csvCell(v interface{}) string {
	if f, ok := v.(float64); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return fmt.Sprint(f)
	}
	return models.FormatCell(v)
}

// WriteJSON writes the table as an array of header-keyed records.
func WriteJSON(path string, tbl *models.Table) error {
	data, err := json.MarshalIndent(tbl.Records(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteXLSX writes the table to a sheet named after it. Numbers stay numeric.
func WriteXLSX(path string, tbl *models.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(tbl.Name)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]interface{}, len(tbl.Headers))
	for i, h := range tbl.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for r, row := range tbl.Rows {
		cells := make([]interface{}, len(row))
		for i, cell := range row {
			switch c := cell.(type) {
			case float64:
				if math.IsNaN(c) || math.IsInf(c, 0) {
					cells[i] = nil
				} else {
					cells[i] = c
				}
			case time.Time:
				cells[i] = models.FormatCell(c)
			default:
				cells[i] = c
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

// sheetName fits a table name into Excel's 31 character sheet limit.
func sheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	name = strings.NewReplacer("/", "_", "\\", "_", "?", "", "*", "", "[", "(", "]", ")", ":", "_").Replace(name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
