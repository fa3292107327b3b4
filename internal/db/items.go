package db

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type ItemKind string

const (
	ItemKindFolder ItemKind = "folder"
	ItemKindFile   ItemKind = "file"
)

// BlobRef points at the bytes of a file in the remote store.
type BlobRef struct {
	FileID    string `json:"fileId"`
	MessageID int64  `json:"messageId,omitempty"`
	Size      string `json:"size"`
	SizeBytes int64  `json:"sizeBytes"`
	FileType  string `json:"fileType"`
	MimeType  string `json:"mimeType,omitempty"`
}

type Item struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	OwnerID  string `gorm:"size:191;not null;index:idx_items_owner_parent,priority:1" json:"-"`
	Owner    *Owner `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	ParentID *uint  `gorm:"index:idx_items_owner_parent,priority:2" json:"parentId"`
	Parent   *Item  `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`

	Name        string   `gorm:"size:255;not null" json:"name"`
	SearchName  string   `gorm:"size:255;not null;default:'';index" json:"-"`
	Kind        ItemKind `gorm:"size:16;not null" json:"type"`
	IsFavorite  bool     `gorm:"not null;default:false" json:"isFavorite"`
	IsTrashed   bool     `gorm:"not null;default:false" json:"isTrashed"`
	TrashRootID *uint    `gorm:"index" json:"-"`
	Blob        *BlobRef `gorm:"serializer:json;type:text" json:"fileMeta,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeSave keeps SearchName in sync for inserts and full saves. Column
// updates go through searchName instead.
func (item *Item) BeforeSave(tx *gorm.DB) error {
	item.SearchName = searchName(item.Name)
	return nil
}

// searchName folds a name in Go, since SQLite's LOWER only folds ASCII.
func searchName(name string) string {
	return strings.ToLower(name)
}

func (item Item) IsFolder() bool {
	return item.Kind == ItemKindFolder
}

// SizeBytes is zero for folders.
func (item Item) SizeBytes() int64 {
	if item.Blob == nil {
		return 0
	}
	return item.Blob.SizeBytes
}

type ItemList []Item

func (items ItemList) ToIDs() []uint {
	result := make([]uint, 0, len(items))
	for _, item := range items {
		result = append(result, item.ID)
	}
	return result
}

type ItemClient ORMClient[Item]

func (client *Client) Item(ctx context.Context) *ItemClient {
	return &ItemClient{
		connection: client.session(ctx),
	}
}

func (client *ItemClient) owned(ownerID string) *gorm.DB {
	return client.connection.Model(&Item{}).Where("owner_id = ?", ownerID)
}

func (client *ItemClient) ListChildren(ownerID string, parentID *uint, includeTrashed bool) (ItemList, error) {
	query := client.owned(ownerID).Where("is_trashed = ?", includeTrashed)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	items := make([]Item, 0)
	err := query.Order("kind DESC, name").Find(&items).Error
	return items, err
}

func (client *ItemClient) FindByID(ownerID string, id uint) (Item, error) {
	var item Item
	err := client.owned(ownerID).Where("id = ?", id).Take(&item).Error
	return item, err
}

func (client *ItemClient) FindByIDs(ownerID string, ids []uint) (ItemList, error) {
	items := make([]Item, 0)
	if len(ids) == 0 {
		return items, nil
	}
	err := client.owned(ownerID).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// FindAllByOwner returns every row of the owner, trashed ones included.
func (client *ItemClient) FindAllByOwner(ownerID string) (ItemList, error) {
	items := make([]Item, 0)
	err := client.owned(ownerID).Order("id").Find(&items).Error
	return items, err
}

func (client *ItemClient) Create(ownerID string, parentID *uint, name string, kind ItemKind, blob *BlobRef) (Item, error) {
	item := Item{
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     name,
		Kind:     kind,
		Blob:     blob,
	}
	err := client.connection.Create(&item).Error
	return item, err
}

func (client *ItemClient) SetFavorite(ownerID string, id uint, favorite bool) (int64, error) {
	result := client.owned(ownerID).
		Where("id = ?", id).
		Update("is_favorite", favorite)
	return result.RowsAffected, result.Error
}

func (client *ItemClient) Rename(ownerID string, id uint, name string) (int64, error) {
	result := client.owned(ownerID).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":        name,
			"search_name": searchName(name),
		})
	return result.RowsAffected, result.Error
}

// Move reparents ids without validating the destination.
func (client *ItemClient) Move(ownerID string, ids []uint, destinationID *uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := client.owned(ownerID).
		Where("id IN ?", ids).
		Update("parent_id", destinationID)
	return result.RowsAffected, result.Error
}

// MarkTrashed hides the rows which are not trashed yet and records rootID as
// the item whose trash call hid them.
func (client *ItemClient) MarkTrashed(ownerID string, ids []uint, rootID uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := client.owned(ownerID).
		Where("id IN ?", ids).
		Where("is_trashed = ?", false).
		Updates(map[string]interface{}{
			"is_trashed":    true,
			"is_favorite":   false,
			"trash_root_id": rootID,
		})
	return result.RowsAffected, result.Error
}

func (client *ItemClient) RestoreByTrashRoots(ownerID string, rootIDs []uint) (int64, error) {
	if len(rootIDs) == 0 {
		return 0, nil
	}
	result := client.owned(ownerID).
		Where("trash_root_id IN ?", rootIDs).
		Updates(map[string]interface{}{
			"is_trashed":    false,
			"trash_root_id": nil,
		})
	return result.RowsAffected, result.Error
}

// ReassignTrashRoot moves the rows hidden by fromRootID under toRootID, so
// that they come back only when toRootID is restored.
func (client *ItemClient) ReassignTrashRoot(ownerID string, fromRootID uint, toRootID uint) (int64, error) {
	result := client.owned(ownerID).
		Where("trash_root_id = ?", fromRootID).
		Update("trash_root_id", toRootID)
	return result.RowsAffected, result.Error
}

func (client *ItemClient) SearchByName(ownerID string, term string) (ItemList, error) {
	items := make([]Item, 0)
	term = strings.TrimSpace(term)
	if term == "" {
		return items, nil
	}

	pattern := "%" + escapeLike(searchName(term)) + "%"
	err := client.owned(ownerID).
		Where("is_trashed = ?", false).
		Where("search_name LIKE ? ESCAPE '!'", pattern).
		Order("kind DESC, name").
		Find(&items).
		Error
	return items, err
}

func (client *ItemClient) ListFavorites(ownerID string) (ItemList, error) {
	items := make([]Item, 0)
	err := client.owned(ownerID).
		Where("is_favorite = ? AND is_trashed = ?", true, false).
		Order("kind DESC, name").
		Find(&items).
		Error
	return items, err
}

// ListTrash returns the items the owner trashed explicitly, not the
// descendants hidden along with them.
func (client *ItemClient) ListTrash(ownerID string) (ItemList, error) {
	items := make([]Item, 0)
	err := client.owned(ownerID).
		Where("is_trashed = ?", true).
		Where("trash_root_id = id").
		Order("updated_at DESC").
		Find(&items).
		Error
	return items, err
}

func (client *ItemClient) ListFolders(ownerID string) (ItemList, error) {
	items := make([]Item, 0)
	err := client.owned(ownerID).
		Where("kind = ? AND is_trashed = ?", ItemKindFolder, false).
		Order("name").
		Find(&items).
		Error
	return items, err
}

func (client *ItemClient) DeleteByIDs(ownerID string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := client.connection.
		Where("owner_id = ?", ownerID).
		Where("id IN ?", ids).
		Delete(&Item{})
	return result.RowsAffected, result.Error
}

// MySQL string literals consume backslashes, so '!' is the LIKE escape.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
