package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
	"golang.org/x/sync/errgroup"
)

// Importer copies a local directory tree into an owner's tree.
type Importer struct {
	logger          *slog.Logger
	treeService     *tree.Service
	transferService *transfer.Service
	concurrency     int
}

func NewImporter(
	logger *slog.Logger,
	treeService *tree.Service,
	transferService *transfer.Service,
	conf config.ImporterConfig,
) *Importer {
	return &Importer{
		logger:          logger,
		treeService:     treeService,
		transferService: transferService,
		concurrency:     conf.Concurrency,
	}
}

type sourceEntry struct {
	relativePath string
	isDir        bool
}

func (entry sourceEntry) depth() int {
	return strings.Count(entry.relativePath, string(filepath.Separator))
}

// Import creates a folder named after sourceDirectory under destinationID
// and uploads everything below it. Folders are created before any upload
// starts; a failed upload does not stop the others and is reported through
// notifier and the returned error.
func (importer *Importer) Import(
	ctx context.Context,
	ownerID string,
	sourceDirectory string,
	destinationID *uint,
	notifier *ProgressNotifier,
) (db.Item, error) {
	sourceDirectory = filepath.Clean(sourceDirectory)
	stat, err := os.Stat(sourceDirectory)
	if err != nil {
		return db.Item{}, fmt.Errorf("os.Stat: %w", err)
	}
	if !stat.IsDir() {
		return db.Item{}, fmt.Errorf("%w: %s is not a directory", tree.ErrValidation, sourceDirectory)
	}

	entries, err := readEntries(sourceDirectory)
	if err != nil {
		return db.Item{}, err
	}

	root, err := importer.treeService.CreateFolder(ctx, ownerID, destinationID, filepath.Base(sourceDirectory))
	if err != nil {
		return db.Item{}, fmt.Errorf("CreateFolder: %w", err)
	}
	folderIDs := map[string]uint{
		".": root.ID,
	}
	files := make([]sourceEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.isDir {
			files = append(files, entry)
			continue
		}
		parentID := folderIDs[filepath.Dir(entry.relativePath)]
		folder, err := importer.treeService.CreateFolder(ctx, ownerID, &parentID, filepath.Base(entry.relativePath))
		if err != nil {
			return root, fmt.Errorf("CreateFolder: %w", err)
		}
		folderIDs[entry.relativePath] = folder.ID
	}
	importer.logger.InfoContext(ctx, "created folders for an import",
		"ownerID", ownerID,
		"source", sourceDirectory,
		"folders", len(folderIDs),
		"files", len(files),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(importer.concurrency)
	for _, file := range files {
		parentID := folderIDs[filepath.Dir(file.relativePath)]
		sourceFilePath := filepath.Join(sourceDirectory, file.relativePath)
		eg.Go(func() error {
			if err := importer.uploadFile(egCtx, ownerID, parentID, sourceFilePath); err != nil {
				notifier.addFailure(sourceFilePath, err)
				return nil
			}
			notifier.addSuccess()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return root, fmt.Errorf("errgroup.Wait: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return root, err
	}
	if len(notifier.FailedErrors) > 0 {
		return root, errors.Join(notifier.FailedErrors...)
	}
	return root, nil
}

func (importer *Importer) uploadFile(ctx context.Context, ownerID string, parentID uint, sourceFilePath string) error {
	file, err := os.Open(sourceFilePath)
	if err != nil {
		return fmt.Errorf("os.Open: %w", err)
	}
	defer file.Close()

	if _, err := importer.transferService.Upload(ctx, ownerID, &parentID, filepath.Base(sourceFilePath), file, ""); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	return nil
}

// readEntries lists directories and regular files below root, parents
// before their children. Symbolic links are not followed.
func readEntries(root string) ([]sourceEntry, error) {
	var mu sync.Mutex
	entries := make([]sourceEntry, 0)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("filepath.Rel: %w", err)
		}
		mu.Lock()
		entries = append(entries, sourceEntry{
			relativePath: relativePath,
			isDir:        d.IsDir(),
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fastwalk.Walk: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].depth() != entries[j].depth() {
			return entries[i].depth() < entries[j].depth()
		}
		return entries[i].relativePath < entries[j].relativePath
	})
	return entries, nil
}

type ProgressNotifier struct {
	Completed    int
	Failed       int
	FailedPaths  []string
	FailedErrors []error

	mutex sync.Mutex
}

func NewProgressNotifier() *ProgressNotifier {
	return &ProgressNotifier{
		FailedPaths:  make([]string, 0),
		FailedErrors: make([]error, 0),
	}
}

func (notifier *ProgressNotifier) addSuccess() {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.Completed++
}

func (notifier *ProgressNotifier) addFailure(path string, err error) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.Failed++
	notifier.FailedPaths = append(notifier.FailedPaths, path)
	notifier.FailedErrors = append(notifier.FailedErrors, fmt.Errorf("%s: %w", path, err))
}
