// Command terminal is a research terminal for crypto, DeFi and portfolio optimization.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"research-terminal/internal/cli"
	"research-terminal/internal/config"
	"research-terminal/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(cli.ConfigDirFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.File = cfg.Log.File
	logCfg.FilePath = cfg.LogPath()
	logger := logging.NewLoggerWithConfig(logCfg)

	app := cli.NewApp(cfg, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(app).ExecuteContext(ctx); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logger.Debug().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}
