package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/xslices"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrCycleRejected = errors.New("destination is inside a moved item")
)

type Service struct {
	logger   *slog.Logger
	dbClient *db.Client
}

func NewService(logger *slog.Logger, dbClient *db.Client) *Service {
	return &Service{
		logger:   logger,
		dbClient: dbClient,
	}
}

func (service *Service) ReadIndex(ctx context.Context, ownerID string) (*Index, error) {
	items, err := service.dbClient.Item(ctx).FindAllByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("FindAllByOwner: %w", err)
	}
	return NewIndex(items), nil
}

// AncestorChain returns the items from the root down to itemID. An unknown
// or foreign id yields an empty chain.
func (service *Service) AncestorChain(ctx context.Context, ownerID string, itemID uint) ([]db.Item, error) {
	index, err := service.ReadIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return index.Ancestors(itemID), nil
}

func (service *Service) FolderTree(ctx context.Context, ownerID string) ([]*Folder, error) {
	index, err := service.ReadIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return index.FolderTree(), nil
}

// ValidateParent checks that parentID is nil or an owned folder which is not
// in the trash.
func (service *Service) ValidateParent(ctx context.Context, ownerID string, parentID *uint) error {
	if parentID == nil {
		return nil
	}
	parent, err := service.dbClient.Item(ctx).FindByID(ownerID, *parentID)
	if err != nil {
		if db.IsNotFound(err) {
			return fmt.Errorf("%w: parent %d does not exist", ErrValidation, *parentID)
		}
		return fmt.Errorf("FindByID: %w", err)
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: parent %d is not a folder", ErrValidation, *parentID)
	}
	if parent.IsTrashed {
		return fmt.Errorf("%w: parent %d is in the trash", ErrValidation, *parentID)
	}
	return nil
}

func (service *Service) CreateFolder(ctx context.Context, ownerID string, parentID *uint, name string) (db.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return db.Item{}, fmt.Errorf("%w: folder name is empty", ErrValidation)
	}

	var folder db.Item
	err := db.NewTransaction(ctx, service.dbClient, func(ctx context.Context) error {
		if err := service.ValidateParent(ctx, ownerID, parentID); err != nil {
			return err
		}
		var err error
		folder, err = service.dbClient.Item(ctx).Create(ownerID, parentID, name, db.ItemKindFolder, nil)
		if err != nil {
			return fmt.Errorf("Create: %w", err)
		}
		return nil
	})
	return folder, err
}

func (service *Service) Rename(ctx context.Context, ownerID string, id uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrValidation)
	}
	if _, err := service.dbClient.Item(ctx).Rename(ownerID, id, name); err != nil {
		return fmt.Errorf("Rename: %w", err)
	}
	return nil
}

func (service *Service) SetFavorite(ctx context.Context, ownerID string, id uint, favorite bool) error {
	if _, err := service.dbClient.Item(ctx).SetFavorite(ownerID, id, favorite); err != nil {
		return fmt.Errorf("SetFavorite: %w", err)
	}
	return nil
}

// Move reparents ids under destinationID, or to the root for nil. A missing,
// foreign or trashed destination leaves everything unchanged.
func (service *Service) Move(ctx context.Context, ownerID string, ids []uint, destinationID *uint) (int64, error) {
	ids = xslices.Unique(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var moved int64
	err := db.NewTransaction(ctx, service.dbClient, func(ctx context.Context) error {
		index, err := service.ReadIndex(ctx, ownerID)
		if err != nil {
			return err
		}

		if destinationID != nil {
			destination, ok := index.Get(*destinationID)
			if !ok || destination.IsTrashed {
				service.logger.DebugContext(ctx, "move destination is not available",
					"ownerID", ownerID,
					"destinationID", *destinationID,
				)
				return nil
			}
			if !destination.IsFolder() {
				return fmt.Errorf("%w: destination %d is not a folder", ErrValidation, *destinationID)
			}
			for _, id := range ids {
				if index.IsDescendant(*destinationID, id) {
					return fmt.Errorf("%w: move %d into %d", ErrCycleRejected, id, *destinationID)
				}
			}
		}

		moved, err = service.dbClient.Item(ctx).Move(ownerID, ids, destinationID)
		if err != nil {
			return fmt.Errorf("Move: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Trash hides each item together with its visible descendants. Items which
// are already in the trash keep their own trash root, so that restoring an
// ancestor does not bring them back.
func (service *Service) Trash(ctx context.Context, ownerID string, ids []uint) (int64, error) {
	ids = xslices.Unique(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var trashed int64
	err := db.NewTransaction(ctx, service.dbClient, func(ctx context.Context) error {
		index, err := service.ReadIndex(ctx, ownerID)
		if err != nil {
			return err
		}

		// ancestors first, so a selected descendant joins its ancestor's trash root
		ids = xslices.Filter(ids, func(id uint) bool {
			_, ok := index.Get(id)
			return ok
		})
		sort.SliceStable(ids, func(i, j int) bool {
			return index.Depth(ids[i]) < index.Depth(ids[j])
		})

		itemClient := service.dbClient.Item(ctx)
		for _, id := range ids {
			item, _ := index.Get(id)
			if item.IsTrashed {
				continue
			}
			targets := append([]uint{id}, db.ItemList(index.Descendants(id)).ToIDs()...)
			affected, err := itemClient.MarkTrashed(ownerID, targets, id)
			if err != nil {
				return fmt.Errorf("MarkTrashed: %w", err)
			}
			trashed += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return trashed, nil
}

// Restore brings back everything hidden by trashing ids. Ids which were only
// hidden as a descendant of another trashed item are ignored. An id whose
// ancestor is still in the trash stays hidden and joins that ancestor's trash
// root instead, so that it comes back together with the ancestor.
func (service *Service) Restore(ctx context.Context, ownerID string, ids []uint) (int64, error) {
	ids = xslices.Unique(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var restored int64
	err := db.NewTransaction(ctx, service.dbClient, func(ctx context.Context) error {
		index, err := service.ReadIndex(ctx, ownerID)
		if err != nil {
			return err
		}
		ids := xslices.Filter(ids, func(id uint) bool {
			item, ok := index.Get(id)
			return ok && item.IsTrashed && item.TrashRootID != nil && *item.TrashRootID == id
		})
		sort.SliceStable(ids, func(i, j int) bool {
			return index.Depth(ids[i]) < index.Depth(ids[j])
		})

		itemClient := service.dbClient.Item(ctx)
		restoring := make(map[uint]bool, len(ids))
		reassigned := make(map[uint]uint)
		for _, id := range ids {
			rootID, ok := trashedAncestorRoot(index, id, restoring, reassigned)
			if !ok {
				restoring[id] = true
				continue
			}
			if _, err := itemClient.ReassignTrashRoot(ownerID, id, rootID); err != nil {
				return fmt.Errorf("ReassignTrashRoot: %w", err)
			}
			reassigned[id] = rootID
			service.logger.InfoContext(ctx, "kept an item in the trash of its ancestor",
				"ownerID", ownerID,
				"itemID", id,
				"trashRootID", rootID,
			)
		}

		restored, err = itemClient.RestoreByTrashRoots(ownerID, xslices.Filter(ids, func(id uint) bool {
			return restoring[id]
		}))
		if err != nil {
			return fmt.Errorf("RestoreByTrashRoots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return restored, nil
}

// trashedAncestorRoot returns the trash root of the nearest ancestor of id
// which stays in the trash after the roots in restoring come back.
func trashedAncestorRoot(index *Index, id uint, restoring map[uint]bool, reassigned map[uint]uint) (uint, bool) {
	chain := index.Ancestors(id)
	for i := len(chain) - 2; i >= 0; i-- {
		ancestor := chain[i]
		if !ancestor.IsTrashed || ancestor.TrashRootID == nil {
			continue
		}
		rootID := *ancestor.TrashRootID
		if to, ok := reassigned[rootID]; ok {
			rootID = to
		}
		if !restoring[rootID] {
			return rootID, true
		}
	}
	return 0, false
}

// PermanentlyDelete removes id and all of its descendants and returns how
// many rows were removed. Levels are deleted deepest first, since SQLite
// does not count rows removed by a foreign key cascade.
func (service *Service) PermanentlyDelete(ctx context.Context, ownerID string, id uint) (int64, error) {
	var deleted int64
	err := db.NewTransaction(ctx, service.dbClient, func(ctx context.Context) error {
		index, err := service.ReadIndex(ctx, ownerID)
		if err != nil {
			return err
		}

		levels := index.Levels(id)
		itemClient := service.dbClient.Item(ctx)
		for i := len(levels) - 1; i >= 0; i-- {
			affected, err := itemClient.DeleteByIDs(ownerID, levels[i])
			if err != nil {
				return fmt.Errorf("DeleteByIDs: %w", err)
			}
			deleted += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		service.logger.InfoContext(ctx, "permanently deleted items",
			"ownerID", ownerID,
			"itemID", id,
			"count", deleted,
		)
	}
	return deleted, nil
}
