package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/michael-freling/telecloud/internal/api"
	"github.com/michael-freling/telecloud/internal/app"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/monitor"
	"github.com/michael-freling/telecloud/internal/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	conf, err := config.ReadConfig(os.Getenv("TELECLOUD_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config.ReadConfig: %v", err)
	}
	logger, logFile, err := xlog.New(conf)
	if err != nil {
		log.Fatalf("xlog.New: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = runMain(ctx, conf, logger)
	stop()
	logFile.Close()
	if err != nil {
		log.Fatalf("runMain: %v", err)
	}
}

func runMain(ctx context.Context, conf config.Config, logger *slog.Logger) error {
	if conf.Environment == config.EnvironmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(conf, logger)
	if err != nil {
		return fmt.Errorf("app.New: %w", err)
	}
	defer application.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitor.NewMetrics(registry)
	server := api.NewServer(
		logger,
		registry,
		application.DBClient,
		application.TreeService,
		application.TransferService,
		application.Exporter,
		application.SearchRunner,
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Run(ctx, conf.Server.Address)
	})
	eg.Go(func() error {
		return application.NewScratchCleaner(logger, metrics).Run(ctx)
	})
	if conf.Monitor.Enabled {
		eg.Go(func() error {
			return application.NewCapacityMonitor(logger, metrics).Run(ctx)
		})
	} else {
		logger.InfoContext(ctx, "the capacity monitor is disabled")
	}

	logger.InfoContext(ctx, "starting telecloud",
		"environment", conf.Environment,
		"address", conf.Server.Address,
		"telegramMode", conf.Telegram.Mode,
	)
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("errgroup.Wait: %w", err)
	}
	logger.InfoContext(ctx, "stopped telecloud")
	return nil
}
