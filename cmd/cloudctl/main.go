package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/michael-freling/telecloud/internal/app"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Error("cloudctl", "error", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

// withApp reads the configuration and runs f with the services built from it.
func (options *rootOptions) withApp(logger *slog.Logger, f func(ctx context.Context, application *app.App) error) error {
	conf, err := config.ReadConfig(options.configPath)
	if err != nil {
		return fmt.Errorf("config.ReadConfig: %w", err)
	}
	application, err := app.New(conf, logger)
	if err != nil {
		return fmt.Errorf("app.New: %w", err)
	}
	defer application.Close()

	return f(context.Background(), application)
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	options := &rootOptions{}
	rootCommand := &cobra.Command{
		Use:           "cloudctl",
		Short:         "Manage a telecloud storage from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().StringVar(&options.configPath, "config", "", "path to the configuration file")

	rootCommand.AddCommand(
		newOwnerCommand(logger, options),
		newTreeCommand(logger, options),
		newImportCommand(logger, options),
		newExportCommand(logger, options),
		newPurgeCacheCommand(logger, options),
	)
	return rootCommand
}
