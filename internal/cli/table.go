package cli

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"research-terminal/internal/errors"
	"research-terminal/internal/export"
	"research-terminal/internal/models"
)

// tableFlags are the listing flags shared by every table command.
type tableFlags struct {
	SortBy  string
	Limit   int
	Ascend  bool
	Formats []string
}

// addTableFlags registers --sortby, --limit, --ascend and --export on cmd.
func addTableFlags(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringP("sortby", "s", "", "column to sort by")
	cmd.Flags().IntP("limit", "l", defaultLimit, "number of rows to show (0 for all)")
	cmd.Flags().BoolP("ascend", "a", false, "sort in ascending order")
	cmd.Flags().String("export", "", "export formats: csv,json,xlsx")
}

func readTableFlags(cmd *cobra.Command) (tableFlags, error) {
	var f tableFlags
	f.SortBy, _ = cmd.Flags().GetString("sortby")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	f.Ascend, _ = cmd.Flags().GetBool("ascend")
	raw, _ := cmd.Flags().GetString("export")
	formats, err := export.ParseFormats(raw)
	if err != nil {
		return f, err
	}
	f.Formats = formats
	return f, nil
}

// commandName is the command path without the binary name, e.g. "crypto coins".
func commandName(cmd *cobra.Command) string {
	name := cmd.CommandPath()
	if root := cmd.Root(); root != nil {
		name = name[min(len(name), len(root.Name())+1):]
	}
	return name
}

// showTable sorts, limits, prints and exports tbl as the flags request.
func (a *App) showTable(cmd *cobra.Command, tbl *models.Table) error {
	output := NewOutput(cmd)
	flags, err := readTableFlags(cmd)
	if err != nil {
		return fail(output, nil, "Invalid flags", err)
	}
	return a.presentTable(cmd, output, tbl, flags)
}

func (a *App) presentTable(cmd *cobra.Command, output *Output, tbl *models.Table, flags tableFlags) error {
	if flags.SortBy != "" {
		if err := tbl.SortBy(flags.SortBy, flags.Ascend); err != nil {
			return fail(output, nil, "Cannot sort", fmt.Errorf("%w (columns: %s)", err, strings.Join(tbl.Headers, ", ")))
		}
	}
	tbl.Head(flags.Limit)

	if output.IsJSON() {
		if err := output.JSON(tbl.Records()); err != nil {
			return err
		}
	} else {
		output.RenderTable(tbl)
	}

	return a.exportTable(cmd, output, tbl, flags.Formats)
}

func (a *App) exportTable(cmd *cobra.Command, output *Output, tbl *models.Table, formats []string) error {
	if len(formats) == 0 {
		return nil
	}
	paths, err := a.Exporter.Table(tbl, commandName(cmd), formats)
	if err != nil {
		return fail(output, nil, "Export failed", err)
	}
	if !output.IsJSON() {
		for _, p := range paths {
			output.Dim("Saved %s", filepath.Base(p))
		}
	}
	return nil
}

// reportedError marks an error already printed to the user.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// Reported reports whether err was already printed by a command.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// fail reports err and renders the empty table so scripted callers still see the columns.
func fail(output *Output, tbl *models.Table, msg string, err error) error {
	output.Error("%s: %v", msg, err)
	if tbl != nil {
		if output.IsJSON() {
			_ = output.JSON([]map[string]interface{}{})
		} else {
			output.RenderTable(tbl)
		}
	}
	return reportedError{err}
}

// plotSeries saves a line chart of one numeric column against the table's first column.
func (a *App) plotSeries(cmd *cobra.Command, output *Output, title string, tbl *models.Table, column string) error {
	j := tbl.ColumnIndex(column)
	if j < 0 {
		return fail(output, nil, "Cannot plot", fmt.Errorf("no %q column", column))
	}
	labels := make([]string, 0, tbl.Len())
	values := make([]float64, 0, tbl.Len())
	for _, row := range tbl.Rows {
		v, ok := row[j].(float64)
		if !ok || math.IsNaN(v) {
			continue
		}
		labels = append(labels, models.FormatCell(row[0]))
		values = append(values, v)
	}

	png, err := export.LineChart(title, labels, []string{column}, [][]float64{values})
	if err != nil {
		return fail(output, nil, "Failed to render chart", err)
	}
	path, err := a.Exporter.SavePNG(commandName(cmd)+" "+strings.ToLower(title), png)
	if err != nil {
		return fail(output, nil, "Failed to save chart", err)
	}
	if !output.IsJSON() {
		output.Info("Chart saved to %s", path)
	}
	return nil
}
