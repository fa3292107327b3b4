package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/michael-freling/telecloud/internal/app"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/importer"
	"github.com/michael-freling/telecloud/internal/monitor"
	"github.com/michael-freling/telecloud/internal/tree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newOwnerCommand(logger *slog.Logger, options *rootOptions) *cobra.Command {
	ownerCommand := &cobra.Command{
		Use:   "owner",
		Short: "Manage owners",
	}

	var botToken, channelID string
	setCommand := &cobra.Command{
		Use:   "set [ownerID]",
		Short: "Create an owner or replace its Telegram credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return options.withApp(logger, func(ctx context.Context, application *app.App) error {
				owner := db.Owner{
					ID:                args[0],
					TelegramBotToken:  botToken,
					TelegramChannelID: channelID,
				}
				if err := application.DBClient.Owner(ctx).Save(owner); err != nil {
					return fmt.Errorf("Owner.Save: %w", err)
				}
				logger.Info("saved an owner", "ownerID", owner.ID)
				return nil
			})
		},
	}
	setCommand.Flags().StringVar(&botToken, "bot-token", "", "token of the Telegram bot uploading files")
	setCommand.Flags().StringVar(&channelID, "channel-id", "", "id of the Telegram channel storing files")
	_ = setCommand.MarkFlagRequired("bot-token")
	_ = setCommand.MarkFlagRequired("channel-id")

	ownerCommand.AddCommand(setCommand)
	return ownerCommand
}

func newTreeCommand(logger *slog.Logger, options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [ownerID]",
		Short: "Print the folders of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return options.withApp(logger, func(ctx context.Context, application *app.App) error {
				folders, err := application.TreeService.FolderTree(ctx, args[0])
				if err != nil {
					return fmt.Errorf("FolderTree: %w", err)
				}
				return printFolders(cmd.OutOrStdout(), folders, 0)
			})
		},
	}
}

func printFolders(w io.Writer, folders []*tree.Folder, depth int) error {
	for _, folder := range folders {
		if _, err := fmt.Fprintf(w, "%s%s/ (%d)\n", strings.Repeat("  ", depth), folder.Name, folder.ID); err != nil {
			return err
		}
		if err := printFolders(w, folder.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func parseItemID(value string) (uint, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q: %w", value, err)
	}
	return uint(id), nil
}

func newImportCommand(logger *slog.Logger, options *rootOptions) *cobra.Command {
	var parent string
	importCommand := &cobra.Command{
		Use:   "import [ownerID] [directory]",
		Short: "Upload a local directory with everything inside it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parentID *uint
			if parent != "" {
				id, err := parseItemID(parent)
				if err != nil {
					return err
				}
				parentID = &id
			}
			return options.withApp(logger, func(ctx context.Context, application *app.App) error {
				notifier := importer.NewProgressNotifier()
				root, err := application.Importer.Import(ctx, args[0], args[1], parentID, notifier)
				logger.Info("imported a directory",
					"folderID", root.ID,
					"completed", notifier.Completed,
					"failed", notifier.Failed,
					"failedPaths", notifier.FailedPaths,
				)
				if err != nil {
					return fmt.Errorf("Import: %w", err)
				}
				return nil
			})
		},
	}
	importCommand.Flags().StringVar(&parent, "parent", "", "id of the folder to import into, the root by default")
	return importCommand
}

func newExportCommand(logger *slog.Logger, options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [ownerID] [output.zip] [itemID...]",
		Short: "Write items and everything below them into a ZIP archive",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint, 0, len(args)-2)
			for _, arg := range args[2:] {
				id, err := parseItemID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			return options.withApp(logger, func(ctx context.Context, application *app.App) (err error) {
				file, err := os.Create(args[1])
				if err != nil {
					return fmt.Errorf("os.Create: %w", err)
				}
				defer func() {
					err = errors.Join(err, file.Close())
				}()

				summary, err := application.Exporter.Export(ctx, args[0], ids, file)
				if err != nil {
					return fmt.Errorf("Export: %w", err)
				}
				logger.Info("exported items",
					"output", args[1],
					"folders", summary.Folders,
					"files", summary.Files,
					"size", humanize.IBytes(uint64(summary.Bytes)),
				)
				return summary.Err()
			})
		},
	}
}

func newPurgeCacheCommand(logger *slog.Logger, options *rootOptions) *cobra.Command {
	var force bool
	purgeCommand := &cobra.Command{
		Use:   "purge-cache",
		Short: "Run one capacity check of the Bot API server cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return options.withApp(logger, func(ctx context.Context, application *app.App) error {
				if force {
					application.Config.Monitor.CeilingBytes = -1
				}
				capacityMonitor := application.NewCapacityMonitor(logger, monitor.NewMetrics(prometheus.NewRegistry()))
				cycle, err := capacityMonitor.RunCycle(ctx)
				if err != nil {
					return fmt.Errorf("RunCycle: %w", err)
				}
				logger.Info("checked the cache",
					"size", humanize.IBytes(uint64(cycle.SizeBytes)),
					"purged", cycle.Purged,
					"restarted", cycle.Restarted,
				)
				return nil
			})
		},
	}
	purgeCommand.Flags().BoolVar(&force, "force", false, "purge even when the cache is under the ceiling")
	return purgeCommand
}
