package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
	"github.com/michael-freling/telecloud/internal/xslices"
)

var ErrArchiveEntryFailed = errors.New("archive entry failed")

type Summary struct {
	Folders  int
	Files    int
	Bytes    int64
	Failures []error
}

func (summary Summary) Err() error {
	return errors.Join(summary.Failures...)
}

type ZipExporter struct {
	logger          *slog.Logger
	treeService     *tree.Service
	transferService *transfer.Service
}

func NewZipExporter(logger *slog.Logger, treeService *tree.Service, transferService *transfer.Service) *ZipExporter {
	return &ZipExporter{
		logger:          logger,
		treeService:     treeService,
		transferService: transferService,
	}
}

// Archive is an export whose rows are read and whose roots are chosen.
// Nothing is written until Write is called.
type Archive struct {
	exporter *ZipExporter
	ownerID  string
	index    *tree.Index
	roots    []db.Item
}

func (exporter *ZipExporter) Prepare(ctx context.Context, ownerID string, ids []uint) (*Archive, error) {
	index, err := exporter.treeService.ReadIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &Archive{
		exporter: exporter,
		ownerID:  ownerID,
		index:    index,
		roots:    selectRoots(index, ids),
	}, nil
}

// Export writes ids and everything below them into a ZIP archive on w.
func (exporter *ZipExporter) Export(ctx context.Context, ownerID string, ids []uint, w io.Writer) (Summary, error) {
	archive, err := exporter.Prepare(ctx, ownerID, ids)
	if err != nil {
		return Summary{}, err
	}
	return archive.Write(ctx, w)
}

// Write streams the archive to w. A file which cannot be read is replaced by
// a <path>.error.txt entry and recorded in the summary; only a failure to
// write the archive itself is returned as an error. If a file fails after
// its entry was started, the entry stays truncated and the note names it.
func (archive *Archive) Write(ctx context.Context, w io.Writer) (Summary, error) {
	var summary Summary

	zipWriter := zip.NewWriter(w)
	writer := &archiveWriter{
		exporter:  archive.exporter,
		index:     archive.index,
		zipWriter: zipWriter,
		summary:   &summary,
		visited:   make(map[uint]bool),
	}
	for _, root := range archive.roots {
		if err := writer.add(ctx, root, ""); err != nil {
			return summary, err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return summary, fmt.Errorf("zipWriter.Close: %w", err)
	}

	archive.exporter.logger.InfoContext(ctx, "exported a zip archive",
		"ownerID", archive.ownerID,
		"folders", summary.Folders,
		"files", summary.Files,
		"bytes", summary.Bytes,
		"failures", len(summary.Failures),
	)
	return summary, nil
}

// selectRoots keeps the visible requested items which are not below another
// requested item, sorted by name.
func selectRoots(index *tree.Index, ids []uint) []db.Item {
	ids = xslices.Unique(ids)
	roots := make([]db.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := index.Get(id)
		if !ok || item.IsTrashed {
			continue
		}
		nested := false
		for _, otherID := range ids {
			if otherID != id && index.IsDescendant(id, otherID) {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, item)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].Name != roots[j].Name {
			return roots[i].Name < roots[j].Name
		}
		return roots[i].ID < roots[j].ID
	})
	return roots
}

type archiveWriter struct {
	exporter  *ZipExporter
	index     *tree.Index
	zipWriter *zip.Writer
	summary   *Summary
	// guards against a parent cycle in corrupted rows
	visited map[uint]bool
}

func (archive *archiveWriter) add(ctx context.Context, item db.Item, parentPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if archive.visited[item.ID] {
		return nil
	}
	archive.visited[item.ID] = true

	entryPath := path.Join(parentPath, entryName(item.Name))
	if !item.IsFolder() {
		return archive.addFile(ctx, item, entryPath)
	}

	if _, err := archive.zipWriter.CreateHeader(&zip.FileHeader{
		Name:     entryPath + "/",
		Method:   zip.Store,
		Modified: item.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("zipWriter.CreateHeader: %w", err)
	}
	archive.summary.Folders++

	id := item.ID
	for _, child := range archive.index.Children(&id) {
		if child.IsTrashed {
			continue
		}
		if err := archive.add(ctx, child, entryPath); err != nil {
			return err
		}
	}
	return nil
}

func (archive *archiveWriter) addFile(ctx context.Context, item db.Item, entryPath string) error {
	download, err := archive.exporter.transferService.OpenItem(ctx, item, transfer.ModeDownload)
	if err != nil {
		return archive.addFailure(ctx, item, entryPath, err, -1)
	}
	defer download.Body.Close()

	writer, err := archive.zipWriter.CreateHeader(&zip.FileHeader{
		Name:     entryPath,
		Method:   zip.Deflate,
		Modified: item.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("zipWriter.CreateHeader: %w", err)
	}

	source := &sourceReader{reader: download.Body}
	written, err := io.Copy(writer, source)
	archive.summary.Bytes += written
	if source.err != nil {
		return archive.addFailure(ctx, item, entryPath, source.err, written)
	}
	if err != nil {
		return fmt.Errorf("io.Copy: %w", err)
	}
	archive.summary.Files++
	return nil
}

// addFailure records a file which could not be exported. truncatedAt is the
// number of bytes already written to the entry at entryPath, or -1 if no
// entry was started.
func (archive *archiveWriter) addFailure(ctx context.Context, item db.Item, entryPath string, cause error, truncatedAt int64) error {
	failure := fmt.Errorf("%w: %s: %w", ErrArchiveEntryFailed, entryPath, cause)
	archive.summary.Failures = append(archive.summary.Failures, failure)
	archive.exporter.logger.WarnContext(ctx, "skipped a file in a zip archive",
		"itemID", item.ID,
		"path", entryPath,
		"truncatedAt", truncatedAt,
		"error", cause,
	)

	writer, err := archive.zipWriter.Create(entryPath + ".error.txt")
	if err != nil {
		return fmt.Errorf("zipWriter.Create: %w", err)
	}
	if truncatedAt < 0 {
		_, err = fmt.Fprintf(writer, "%s could not be exported: %v\n", item.Name, cause)
	} else {
		_, err = fmt.Fprintf(writer, "%s could not be exported: the entry %s is truncated after %d bytes: %v\n",
			item.Name,
			entryPath,
			truncatedAt,
			cause,
		)
	}
	if err != nil {
		return fmt.Errorf("fmt.Fprintf: %w", err)
	}
	return nil
}

// sourceReader remembers a read error, so that it can be told apart from a
// failure to write the archive.
type sourceReader struct {
	reader io.Reader
	err    error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

var entryNameReplacer = strings.NewReplacer("/", "_", "\\", "_")

func entryName(name string) string {
	name = entryNameReplacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
