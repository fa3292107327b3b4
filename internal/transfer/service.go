package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/michael-freling/telecloud/internal/blob"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/tree"
)

type Mode string

const (
	ModeDownload Mode = "download"
	ModePreview  Mode = "preview"
)

// Download is an opened file. Body must be closed by the caller.
type Download struct {
	Item db.Item
	Body io.ReadCloser
	Size int64
}

func (download Download) ContentType() string {
	if download.Item.Blob != nil && download.Item.Blob.MimeType != "" {
		return download.Item.Blob.MimeType
	}
	return "application/octet-stream"
}

type Service struct {
	logger           *slog.Logger
	dbClient         *db.Client
	gateway          blob.Gateway
	treeService      *tree.Service
	previewPolicy    blob.PreviewPolicy
	scratchDirectory string
}

func NewService(
	logger *slog.Logger,
	dbClient *db.Client,
	gateway blob.Gateway,
	treeService *tree.Service,
	previewPolicy blob.PreviewPolicy,
	scratchDirectory string,
) *Service {
	return &Service{
		logger:           logger,
		dbClient:         dbClient,
		gateway:          gateway,
		treeService:      treeService,
		previewPolicy:    previewPolicy,
		scratchDirectory: scratchDirectory,
	}
}

// OwnerToken returns empty credentials for an owner without settings.
func (service *Service) OwnerToken(ctx context.Context, ownerID string) (blob.OwnerToken, error) {
	owner, err := service.dbClient.Owner(ctx).FindByID(ownerID)
	if err != nil {
		if db.IsNotFound(err) {
			return blob.OwnerToken{}, nil
		}
		return blob.OwnerToken{}, fmt.Errorf("Owner.FindByID: %w", err)
	}
	return blob.OwnerTokenFrom(owner), nil
}

// Upload stores r remotely and records it under parentID. No row is created
// unless the remote store accepted the bytes.
func (service *Service) Upload(ctx context.Context, ownerID string, parentID *uint, filename string, r io.Reader, mimeType string) (db.Item, error) {
	filename = strings.TrimSpace(filepath.Base(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return db.Item{}, fmt.Errorf("%w: file name is empty", tree.ErrValidation)
	}
	if err := service.treeService.ValidateParent(ctx, ownerID, parentID); err != nil {
		return db.Item{}, err
	}

	token, err := service.OwnerToken(ctx, ownerID)
	if err != nil {
		return db.Item{}, err
	}
	ref, err := service.gateway.Upload(ctx, token, r, filename, mimeType)
	if err != nil {
		return db.Item{}, fmt.Errorf("gateway.Upload: %w", err)
	}

	item, err := service.dbClient.Item(ctx).Create(ownerID, parentID, filename, db.ItemKindFile, &ref)
	if err != nil {
		service.logger.ErrorContext(ctx, "an uploaded file has no metadata",
			"ownerID", ownerID,
			"filename", filename,
			"fileID", ref.FileID,
			"messageID", ref.MessageID,
			"error", err,
		)
		return db.Item{}, fmt.Errorf("Item.Create: %w", err)
	}
	service.logger.InfoContext(ctx, "uploaded a file",
		"ownerID", ownerID,
		"itemID", item.ID,
		"size", ref.Size,
	)
	return item, nil
}

// Open returns the bytes of a file. In preview mode the preview policy is
// checked before anything is fetched.
func (service *Service) Open(ctx context.Context, ownerID string, id uint, mode Mode) (Download, error) {
	item, err := service.dbClient.Item(ctx).FindByID(ownerID, id)
	if err != nil {
		return Download{}, fmt.Errorf("Item.FindByID: %w", err)
	}
	return service.OpenItem(ctx, item, mode)
}

func (service *Service) OpenItem(ctx context.Context, item db.Item, mode Mode) (Download, error) {
	if item.IsFolder() || item.Blob == nil {
		return Download{}, fmt.Errorf("%w: %s is not a file", tree.ErrValidation, item.Name)
	}
	if mode == ModePreview {
		if err := service.previewPolicy.Check(item.Name, item.SizeBytes()); err != nil {
			return Download{}, err
		}
	}

	token, err := service.OwnerToken(ctx, item.OwnerID)
	if err != nil {
		return Download{}, err
	}
	body, size, err := service.gateway.Open(ctx, token, *item.Blob)
	if err != nil {
		return Download{}, fmt.Errorf("gateway.Open: %w", err)
	}
	if size < 0 {
		size = item.SizeBytes()
	}
	return Download{
		Item: item,
		Body: body,
		Size: size,
	}, nil
}

// Seekable makes the body of download seekable, copying it into the scratch
// directory unless it already is. The copy is removed by the scratch cleaner.
func (service *Service) Seekable(download Download) (io.ReadSeekCloser, error) {
	if seeker, ok := download.Body.(io.ReadSeekCloser); ok {
		return seeker, nil
	}
	defer download.Body.Close()

	if err := os.MkdirAll(service.scratchDirectory, 0755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}
	scratchPath := filepath.Join(service.scratchDirectory, uuid.NewString()+"."+blob.FileType(download.Item.Name))
	file, err := os.Create(scratchPath)
	if err != nil {
		return nil, fmt.Errorf("os.Create: %w", err)
	}
	if _, err := io.Copy(file, download.Body); err != nil {
		file.Close()
		os.Remove(scratchPath)
		return nil, fmt.Errorf("io.Copy: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("file.Seek: %w", err)
	}
	return file, nil
}
