package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/export"
	"github.com/michael-freling/telecloud/internal/search"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry both registers and serves the metrics of the process.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Exporter prepares ZIP archives of an owner's items.
type Exporter interface {
	Prepare(ctx context.Context, ownerID string, ids []uint) (*export.Archive, error)
}

type Server struct {
	logger          *slog.Logger
	dbClient        *db.Client
	treeService     *tree.Service
	transferService *transfer.Service
	exporter        Exporter
	searchRunner    *search.Runner

	registry Registry
	requests *prometheus.CounterVec
}

func NewServer(
	logger *slog.Logger,
	registry Registry,
	dbClient *db.Client,
	treeService *tree.Service,
	transferService *transfer.Service,
	exporter Exporter,
	searchRunner *search.Runner,
) *Server {
	requests := promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "telecloud_http_requests_total",
		Help: "Number of HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	return &Server{
		logger:          logger,
		dbClient:        dbClient,
		treeService:     treeService,
		transferService: transferService,
		exporter:        exporter,
		searchRunner:    searchRunner,
		registry:        registry,
		requests:        requests,
	}
}

func (server *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestLogger())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(server.registry, promhttp.HandlerOpts{})))

	cloud := router.Group("/api/cloud", server.ownerMiddleware())
	cloud.GET("/items", server.listItems)
	cloud.GET("/path/:id", server.getPath)
	cloud.GET("/favorites", server.listFavorites)
	cloud.GET("/trash", server.listTrash)
	cloud.GET("/folders", server.listFolders)
	cloud.GET("/search", server.search)

	cloud.POST("/folder", server.createFolder)
	cloud.PATCH("/item/:id/favorite", server.setFavorite)
	cloud.PATCH("/item/:id/rename", server.rename)
	cloud.DELETE("/item/:id", server.trashItem)
	cloud.POST("/items/trash", server.trashItems)
	cloud.PATCH("/items/move", server.moveItems)
	cloud.PATCH("/trash/restore", server.restoreItems)
	cloud.DELETE("/trash/item/:id", server.deleteItem)

	cloud.POST("/upload", server.upload)
	cloud.GET("/download/:id", server.download)
	cloud.POST("/download/zip", server.downloadZip)
	return router
}

// Run serves on address until ctx is done and then shuts down gracefully.
func (server *Server) Run(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		shutdownErr <- httpServer.Shutdown(shutdownCtx)
	}()

	server.logger.InfoContext(ctx, "started the HTTP server", "address", address)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("Shutdown: %w", err)
	}
	return nil
}
