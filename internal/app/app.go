package app

import (
	"fmt"
	"log/slog"

	"github.com/michael-freling/telecloud/internal/blob"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/control"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/export"
	"github.com/michael-freling/telecloud/internal/importer"
	"github.com/michael-freling/telecloud/internal/monitor"
	"github.com/michael-freling/telecloud/internal/search"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
)

// App holds the services shared by the server and the CLI.
type App struct {
	Config   config.Config
	DBClient *db.Client

	Gateway         *blob.TelegramGateway
	TreeService     *tree.Service
	TransferService *transfer.Service
	Exporter        *export.ZipExporter
	SearchRunner    *search.Runner
	Importer        *importer.Importer
}

// New connects to the database, migrates it and builds every service.
func New(conf config.Config, logger *slog.Logger) (*App, error) {
	dbClient, err := db.FromConfig(conf, logger)
	if err != nil {
		return nil, fmt.Errorf("db.FromConfig: %w", err)
	}
	if err := dbClient.Migrate(); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("dbClient.Migrate: %w", err)
	}

	gateway := blob.NewTelegramGateway(logger, conf.Telegram)
	treeService := tree.NewService(logger, dbClient)
	transferService := transfer.NewService(
		logger,
		dbClient,
		gateway,
		treeService,
		blob.NewPreviewPolicy(conf.Preview),
		conf.Monitor.ScratchDirectory,
	)
	return &App{
		Config:          conf,
		DBClient:        dbClient,
		Gateway:         gateway,
		TreeService:     treeService,
		TransferService: transferService,
		Exporter:        export.NewZipExporter(logger, treeService, transferService),
		SearchRunner:    search.NewRunner(logger, dbClient, treeService),
		Importer:        importer.NewImporter(logger, treeService, transferService, conf.Importer),
	}, nil
}

func (app *App) NewCapacityMonitor(logger *slog.Logger, metrics *monitor.Metrics) *monitor.CapacityMonitor {
	return monitor.NewCapacityMonitor(
		logger,
		app.Config.Monitor,
		control.NewDockerClient(logger, app.Config.Monitor.ControlSocket),
		metrics,
	)
}

func (app *App) NewScratchCleaner(logger *slog.Logger, metrics *monitor.Metrics) *monitor.ScratchCleaner {
	return monitor.NewScratchCleaner(logger, app.Config.Monitor.ScratchDirectory, app.Config.Monitor.ScratchInterval, metrics)
}

func (app *App) Close() error {
	return app.DBClient.Close()
}
