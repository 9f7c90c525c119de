package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreschagin/pagespeed-monitor/pkg/config"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagespeed-monitor",
		Short:         "Measures registered pages through PageSpeed Insights and keeps the results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newMeasureCommand(),
		newMigrateCommand(),
	)
	return root
}

// bootstrap загружает конфигурацию и создает logger
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel), nil
}
