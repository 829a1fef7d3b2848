package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"research-terminal/internal/sources/defillama"
)

func newDefiCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defi",
		Short: "DeFi protocols and chains (DeFi Llama)",
	}
	client := func() *defillama.Client { return defillama.New(app.httpOptions()) }

	protocols := &cobra.Command{
		Use:   "protocols",
		Short: "Protocols by total value locked",
		Example: `  terminal defi protocols --limit 20
  terminal defi protocols --sortby "Change 1D %"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			limit, _ := cmd.Flags().GetInt("limit")
			sortBy, _ := cmd.Flags().GetString("sortby")
			ascend, _ := cmd.Flags().GetBool("ascend")

			// The client sorts descending before limiting; ascending order is applied
			// afterwards over the full list.
			fetchLimit := limit
			if ascend {
				fetchLimit = 0
			}
			tbl, err := client().Protocols(ctx, fetchLimit, sortBy)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load protocols", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(protocols, 20)

	chains := &cobra.Command{
		Use:   "chains",
		Short: "Chains by total value locked",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().Chains(ctx, 0)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load chains", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(chains, 20)

	tvl := &cobra.Command{
		Use:     "tvl <protocol-slug>",
		Short:   "Historical TVL of one protocol",
		Example: `  terminal defi tvl aave --plot`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().ProtocolTVL(ctx, strings.ToLower(args[0]))
			if err != nil {
				return fail(output, nil, "Failed to load protocol TVL", err)
			}
			if plot, _ := cmd.Flags().GetBool("plot"); plot {
				if err := app.plotSeries(cmd, output, args[0]+" TVL", tbl, "TVL"); err != nil {
					return err
				}
			}
			return app.showTable(cmd, tbl)
		},
	}
	tvl.Flags().Bool("plot", false, "save a PNG line chart")
	addTableFlags(tvl, 0)

	history := &cobra.Command{
		Use:   "history",
		Short: "Historical TVL across all chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().HistoricalTVL(ctx)
			if err != nil {
				return fail(output, nil, "Failed to load historical TVL", err)
			}
			if plot, _ := cmd.Flags().GetBool("plot"); plot {
				if err := app.plotSeries(cmd, output, "DeFi TVL", tbl, "TVL"); err != nil {
					return err
				}
			}
			return app.showTable(cmd, tbl)
		},
	}
	history.Flags().Bool("plot", false, "save a PNG line chart")
	addTableFlags(history, 0)

	cmd.AddCommand(protocols, chains, tvl, history)
	return cmd
}
