package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Table is the tabular result every command renders or exports.
// Cells hold raw values (string, float64, int, time.Time) so exports keep their types.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// NewTable creates an empty table with the given headers.
func NewTable(name string, headers ...string) *Table {
	return &Table{Name: name, Headers: headers}
}

// AddRow appends a row. Short rows are padded with empty strings.
func (t *Table) AddRow(cells ...interface{}) {
	for len(cells) < len(t.Headers) {
		cells = append(cells, "")
	}
	t.Rows = append(t.Rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex finds a header case-insensitively, ignoring spaces, underscores and percent signs.
func (t *Table) ColumnIndex(name string) int {
	want := normalizeHeader(name)
	for i, h := range t.Headers {
		if normalizeHeader(h) == want {
			return i
		}
	}
	return -1
}

// SortBy orders rows by the named column. Numeric cells compare numerically and NaN sorts last.
func (t *Table) SortBy(column string, ascending bool) error {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return fmt.Errorf("unknown sort column %q (available: %s)", column, strings.Join(t.Headers, ", "))
	}

	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i][idx], t.Rows[j][idx]
		fa, okA := numeric(a)
		fb, okB := numeric(b)
		if okA && okB {
			switch {
			case math.IsNaN(fa):
				return false
			case math.IsNaN(fb):
				return true
			case ascending:
				return fa < fb
			default:
				return fa > fb
			}
		}
		sa, sb := fmt.Sprint(a), fmt.Sprint(b)
		if ascending {
			return sa < sb
		}
		return sa > sb
	})
	return nil
}

// Head truncates the table to its first n rows. n <= 0 keeps everything.
func (t *Table) Head(n int) {
	if n > 0 && n < len(t.Rows) {
		t.Rows = t.Rows[:n]
	}
}

// Records returns the rows as a slice of header-keyed maps, for JSON output.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]interface{}, len(t.Headers))
		for i, h := range t.Headers {
			v := row[i]
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = nil
			}
			rec[h] = v
		}
		out = append(out, rec)
	}
	return out
}

// FormatCell renders a cell the way tables and CSV exports show it.
func FormatCell(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		if math.IsNaN(c) {
			return "-"
		}
		return fmt.Sprintf("%.4f", c)
	case time.Time:
		if c.IsZero() {
			return ""
		}
		if c.Hour() == 0 && c.Minute() == 0 && c.Second() == 0 {
			return c.Format("2006-01-02")
		}
		return c.Format("2006-01-02 15:04")
	case bool:
		if c {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(c)
	}
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func normalizeHeader(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "", "_", "", "%", "").Replace(s)
}
