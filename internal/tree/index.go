package tree

import (
	"sort"
	"strings"

	"github.com/michael-freling/telecloud/internal/db"
)

// Index is an in-memory view of one owner's rows, built from a single fetch.
type Index struct {
	byID     map[uint]db.Item
	children map[uint][]uint
	roots    []uint
}

func NewIndex(items []db.Item) *Index {
	index := &Index{
		byID:     make(map[uint]db.Item, len(items)),
		children: make(map[uint][]uint),
		roots:    make([]uint, 0),
	}
	for _, item := range items {
		index.byID[item.ID] = item
		if item.ParentID == nil {
			index.roots = append(index.roots, item.ID)
			continue
		}
		index.children[*item.ParentID] = append(index.children[*item.ParentID], item.ID)
	}
	return index
}

func (index *Index) Get(id uint) (db.Item, bool) {
	item, ok := index.byID[id]
	return item, ok
}

// Children returns the direct children of parentID, or the root items for
// nil, sorted by name.
func (index *Index) Children(parentID *uint) []db.Item {
	ids := index.roots
	if parentID != nil {
		ids = index.children[*parentID]
	}
	result := make([]db.Item, 0, len(ids))
	for _, id := range ids {
		result = append(result, index.byID[id])
	}
	sortByName(result)
	return result
}

// Descendants returns every item below id in breadth first order, excluding
// id itself.
func (index *Index) Descendants(id uint) []db.Item {
	result := make([]db.Item, 0)
	for _, level := range index.Levels(id)[1:] {
		for _, childID := range level {
			result = append(result, index.byID[childID])
		}
	}
	return result
}

// Levels groups id and its descendants by depth; level 0 holds id only.
// It returns a single empty level for an unknown id.
func (index *Index) Levels(id uint) [][]uint {
	if _, ok := index.byID[id]; !ok {
		return [][]uint{{}}
	}

	levels := [][]uint{{id}}
	visited := map[uint]struct{}{id: {}}
	for {
		current := levels[len(levels)-1]
		next := make([]uint, 0)
		for _, parentID := range current {
			for _, childID := range index.children[parentID] {
				// rows from a corrupted table could form a loop
				if _, ok := visited[childID]; ok {
					continue
				}
				visited[childID] = struct{}{}
				next = append(next, childID)
			}
		}
		if len(next) == 0 {
			return levels
		}
		levels = append(levels, next)
	}
}

// Ancestors returns the chain from the root down to id, id included. The
// walk stops at the first missing parent and never takes more steps than
// there are rows.
func (index *Index) Ancestors(id uint) []db.Item {
	chain := make([]db.Item, 0)
	current, ok := index.byID[id]
	for steps := 0; ok && steps <= len(index.byID); steps++ {
		chain = append(chain, current)
		if current.ParentID == nil {
			break
		}
		current, ok = index.byID[*current.ParentID]
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsDescendant reports whether id equals ancestorID or lies below it.
func (index *Index) IsDescendant(id uint, ancestorID uint) bool {
	for _, item := range index.Ancestors(id) {
		if item.ID == ancestorID {
			return true
		}
	}
	return false
}

// Path joins the names from the root down to id with "/".
func (index *Index) Path(id uint) string {
	names := make([]string, 0)
	for _, item := range index.Ancestors(id) {
		names = append(names, item.Name)
	}
	return strings.Join(names, "/")
}

// Depth is 0 for a root item.
func (index *Index) Depth(id uint) int {
	return len(index.Ancestors(id)) - 1
}

type Folder struct {
	ID       uint      `json:"id"`
	Name     string    `json:"name"`
	ParentID *uint     `json:"parentId"`
	Children []*Folder `json:"children"`
}

// FolderTree materializes the non-trashed folders. A folder whose parent is
// hidden is not reachable and is left out.
func (index *Index) FolderTree() []*Folder {
	var build func(items []db.Item) []*Folder
	build = func(items []db.Item) []*Folder {
		result := make([]*Folder, 0)
		for _, item := range items {
			if !item.IsFolder() || item.IsTrashed {
				continue
			}
			id := item.ID
			result = append(result, &Folder{
				ID:       item.ID,
				Name:     item.Name,
				ParentID: item.ParentID,
				Children: build(index.Children(&id)),
			})
		}
		return result
	}
	return build(index.Children(nil))
}

func sortByName(items []db.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
}
