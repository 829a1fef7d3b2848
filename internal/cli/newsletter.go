package cli

import (
	"github.com/spf13/cobra"

	"research-terminal/internal/newsletter"
)

func newNewsletterCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsletter",
		Short: "Latest posts from crypto and DeFi newsletters",
		Long: `Fetch the newest posts of the configured Substack publications concurrently.

A publication that fails is skipped. With --digest and an OpenAI key configured,
the headlines are summarised into a short briefing.`,
		Example: `  terminal newsletter --limit 15
  terminal newsletter --digest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags, err := readTableFlags(cmd)
			if err != nil {
				return fail(output, nil, "Invalid flags", err)
			}
			digest, _ := cmd.Flags().GetBool("digest")
			workers, _ := cmd.Flags().GetInt("workers")
			if workers <= 0 {
				workers = app.Config.Newsletter.Workers
			}

			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			svc := newsletter.NewService(newsletter.Options{
				Sources: app.Config.Newsletter.Sources,
				Workers: workers,
				Limit:   app.Config.Newsletter.Limit,
				HTTP:    app.httpOptions(),
				Logger:  app.Logger,
			})
			articles, err := svc.Fetch(ctx)
			if err != nil {
				return fail(output, newsletter.Table(nil), "Failed to load newsletters", err)
			}

			tbl := newsletter.Table(articles)
			if !digest {
				return app.presentTable(cmd, output, tbl, flags)
			}

			summary, err := newsletter.Digest(ctx, app.Summarizer, articles)
			if err != nil {
				return fail(output, nil, "Digest failed", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"digest": summary, "articles": len(articles)})
			}
			output.Bold("Digest of %d posts", len(articles))
			output.Println(summary)
			return app.exportTable(cmd, output, tbl, flags.Formats)
		},
	}
	cmd.Flags().Bool("digest", false, "summarise headlines with OpenAI")
	cmd.Flags().Int("workers", 0, "concurrent requests (default from config)")
	addTableFlags(cmd, 30)
	return cmd
}
