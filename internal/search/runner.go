package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/tree"
)

type Result struct {
	db.Item
	// Location is the path of the folder holding the item, empty at the root.
	Location string `json:"location"`
}

type Runner struct {
	logger      *slog.Logger
	dbClient    *db.Client
	treeService *tree.Service
}

func NewRunner(logger *slog.Logger, dbClient *db.Client, treeService *tree.Service) *Runner {
	return &Runner{
		logger:      logger,
		dbClient:    dbClient,
		treeService: treeService,
	}
}

// Search finds the visible items whose names contain term. With a non-nil
// folderID only items below that folder are returned.
func (runner *Runner) Search(ctx context.Context, ownerID string, term string, folderID *uint) ([]Result, error) {
	items, err := runner.dbClient.Item(ctx).SearchByName(ownerID, term)
	if err != nil {
		return nil, fmt.Errorf("SearchByName: %w", err)
	}
	if len(items) == 0 {
		return []Result{}, nil
	}

	index, err := runner.treeService.ReadIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		if folderID != nil && (item.ID == *folderID || !index.IsDescendant(item.ID, *folderID)) {
			continue
		}

		location := ""
		if item.ParentID != nil {
			location = index.Path(*item.ParentID)
		}
		results = append(results, Result{
			Item:     item,
			Location: location,
		})
	}
	runner.logger.DebugContext(ctx, "searched items",
		"ownerID", ownerID,
		"term", term,
		"count", len(results),
	)
	return results, nil
}
