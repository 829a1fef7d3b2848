package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
	"research-terminal/internal/po"
	"research-terminal/internal/store"
)

func newPoParamsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Optimization parameters",
		Long: `List, inspect, load and save optimization parameters.

Parameter files are .ini files whose keys are the parameter names listed by
'terminal po params list'. Section names are ignored.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every parameter with its type, default and choices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showTable(cmd, catalogTable())
		},
	}
	addTableFlags(list, 0)

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective parameters after config, files and overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params, err := app.effectiveParams(cmd)
			if err != nil {
				return fail(output, paramsTable(nil), "Invalid parameters", err)
			}
			return app.showTable(cmd, paramsTable(params))
		},
	}
	addTableFlags(show, 0)

	load := &cobra.Command{
		Use:     "load <file>",
		Short:   "Validate a parameter file and show its values",
		Example: `  terminal po params load presets/conservative.ini`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params, unknown, err := po.ReadParamsFile(args[0])
			if err != nil {
				return fail(output, paramsTable(nil), "Invalid parameter file", err)
			}
			if len(unknown) > 0 && !output.IsJSON() {
				output.Warning("Ignoring unknown keys: %s", strings.Join(unknown, ", "))
			}
			if err := app.showTable(cmd, paramsTable(params)); err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Dim("Use it with --params-file %s or set [portfolio] params_file", args[0])
			}
			return nil
		},
	}
	addTableFlags(load, 0)

	save := &cobra.Command{
		Use:   "save <file>",
		Short: "Write the effective parameters to an .ini file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params, err := app.effectiveParams(cmd)
			if err != nil {
				return fail(output, nil, "Invalid parameters", err)
			}
			if err := po.WriteParamsFile(args[0], params); err != nil {
				return fail(output, nil, "Failed to write parameters", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": args[0]})
			}
			output.Success("Parameters written to %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, load, save)
	return cmd
}

// effectiveParams merges catalog defaults, [portfolio] config, parameter files and
// command line overrides, keyed by template name.
func (a *App) effectiveParams(cmd *cobra.Command) (map[string]interface{}, error) {
	merged := po.Defaults()
	layers := []map[string]interface{}{a.configParams()}
	for _, path := range a.paramsFiles(cmd) {
		params, unknown, err := po.ReadParamsFile(path)
		if err != nil {
			return nil, err
		}
		for _, key := range unknown {
			a.Logger.Warn().Str("file", path).Str("key", key).Msg("Ignoring unknown parameter")
		}
		layers = append(layers, params)
	}
	overrides, err := poOverrides(cmd)
	if err != nil {
		return nil, err
	}
	layers = append(layers, overrides)

	for _, layer := range layers {
		for k, raw := range layer {
			p, ok := po.Resolve(k)
			if !ok {
				return nil, errors.NewParameterError(k, raw, errors.ErrUnknownParameter)
			}
			v, err := p.Validate(raw)
			if err != nil {
				return nil, err
			}
			merged[p.Name()] = v
		}
	}

	if _, _, err := po.ValidateInputs(merged, nil); err != nil {
		return nil, err
	}
	return merged, nil
}

func catalogTable() *models.Table {
	tbl := models.NewTable("parameters", "Name", "Native", "Type", "Default", "Choices", "Description")
	for _, p := range po.Catalog() {
		choices := make([]string, 0, len(p.Choices()))
		for _, c := range p.Choices() {
			choices = append(choices, fmt.Sprint(c))
		}
		tbl.AddRow(p.Name(), p.Native(), string(p.Type()), fmt.Sprint(p.Default()), strings.Join(choices, " "), p.Help())
	}
	return tbl
}

func paramsTable(params map[string]interface{}) *models.Table {
	tbl := models.NewTable("parameters", "Name", "Value")
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		tbl.AddRow(k, fmt.Sprint(params[k]))
	}
	return tbl
}

func newPoCategoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category <name>",
		Short: "Group optimized weights by an allocation file category",
		Long: `Optimize, then group the weights by one category of the allocation file,
e.g. SECTOR, ASSET_CLASS or COUNTRY. With --from-saved and no --method the saved
weights are grouped without optimizing again.`,
		Example: `  terminal po category sector --file holdings.csv --method hrp
  terminal po category asset_class --file holdings.xlsx --from-saved 3f2a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags, err := readTableFlags(cmd)
			if err != nil {
				return fail(output, nil, "Invalid flags", err)
			}
			method, _ := cmd.Flags().GetString("method")
			savedID, _ := cmd.Flags().GetString("from-saved")

			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			engine, err := app.buildEngine(ctx, cmd)
			if err != nil {
				return fail(output, nil, "Cannot build portfolio", err)
			}
			if savedID == "" || cmd.Flags().Changed("method") {
				entry, ok := po.EntryPoints[method]
				if !ok {
					return fail(output, nil, "Unknown method", fmt.Errorf("%q (use one of the po subcommands)", method))
				}
				overrides, err := poOverrides(cmd)
				if err != nil {
					return fail(output, nil, "Invalid parameters", err)
				}
				if _, err := entry(ctx, engine, app.Prices, overrides); err != nil {
					return fail(output, nil, "Optimization failed", err)
				}
			}

			tbl, err := engine.GetCategoryTable(args[0])
			if err != nil {
				return fail(output, nil, "Cannot group weights", err)
			}
			return app.presentTable(cmd, output, tbl, flags)
		},
	}
	cmd.Flags().String("method", "equal", "optimizer used to produce the weights")
	addTableFlags(cmd, 0)
	return cmd
}

func (a *App) requireStore(output *Output) error {
	if a.Store == nil {
		return fail(output, nil, "Local store unavailable", fmt.Errorf("see the log for details"))
	}
	return nil
}

func newPoSavedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "List saved portfolios, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(output); err != nil {
				return err
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			portfolios, err := app.Store.ListPortfolios(ctx, 0)
			if err != nil {
				return fail(output, nil, "Failed to list portfolios", err)
			}
			return app.showTable(cmd, savedTable(portfolios))
		},
	}
	addTableFlags(cmd, 20)
	return cmd
}

func savedTable(portfolios []store.Portfolio) *models.Table {
	tbl := models.NewTable("saved_portfolios", "Id", "Name", "Method", "Created", "Assets", "Top Holding")
	for _, p := range portfolios {
		top := ""
		if syms := p.Symbols(); len(syms) > 0 {
			top = fmt.Sprintf("%s (%s)", syms[0], FormatWeight(p.Weights[syms[0]]))
		}
		tbl.AddRow(shortID(p.ID), p.Name, p.Method, p.CreatedAt.Local().Format("2006-01-02 15:04"), len(p.Weights), top)
	}
	return tbl
}

// shortID keeps enough of a uuid to address a saved portfolio by prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newPoShowSavedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-saved <id>",
		Short: "Show the weights and parameters of a saved portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(output); err != nil {
				return err
			}
			flags, err := readTableFlags(cmd)
			if err != nil {
				return fail(output, nil, "Invalid flags", err)
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			p, err := app.Store.GetPortfolio(ctx, args[0])
			if err != nil {
				return fail(output, nil, "Failed to load portfolio", err)
			}

			tbl := models.NewTable(p.Name, "Symbol", "Weight")
			for _, sym := range p.Symbols() {
				tbl.AddRow(sym, p.Weights[sym])
			}
			if output.IsJSON() {
				if err := output.JSON(p); err != nil {
					return err
				}
				return app.exportTable(cmd, output, tbl, flags.Formats)
			}

			output.Bold("%s (%s)", p.Name, p.Method)
			output.Dim("%s, saved %s", p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04"))
			output.Println()
			if err := app.presentTable(cmd, output, tbl, flags); err != nil {
				return err
			}
			if verbose, _ := cmd.Flags().GetBool("params"); verbose {
				output.Println()
				output.RenderTable(paramsTable(p.Params))
			}
			return nil
		},
	}
	cmd.Flags().Bool("params", false, "also show the parameters the optimizer ran with")
	addTableFlags(cmd, 0)
	return cmd
}

func newPoDeleteSavedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-saved <id>",
		Short: "Delete a saved portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(output); err != nil {
				return err
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			if err := app.Store.DeletePortfolio(ctx, args[0]); err != nil {
				return fail(output, nil, "Failed to delete portfolio", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Deleted %s", args[0])
			return nil
		},
	}
}
