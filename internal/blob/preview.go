package blob

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/michael-freling/telecloud/internal/config"
)

type PreviewPolicy struct {
	maxBytes   int64
	extensions map[string]struct{}
}

func NewPreviewPolicy(conf config.PreviewConfig) PreviewPolicy {
	extensions := make(map[string]struct{}, len(conf.Extensions))
	for _, extension := range conf.Extensions {
		extensions[strings.ToLower(strings.TrimPrefix(extension, "."))] = struct{}{}
	}
	return PreviewPolicy{
		maxBytes:   conf.MaxBytes,
		extensions: extensions,
	}
}

// Check rejects files which are too large or not on the extension allow-list.
func (policy PreviewPolicy) Check(name string, size int64) error {
	fileType := FileType(name)
	if _, ok := policy.extensions[fileType]; !ok {
		return fmt.Errorf("%w: .%s files are not previewable", ErrPreviewNotAllowed, fileType)
	}
	if size > policy.maxBytes {
		return fmt.Errorf("%w: %s exceeds %s",
			ErrPreviewNotAllowed,
			humanize.IBytes(uint64(size)),
			humanize.IBytes(uint64(policy.maxBytes)),
		)
	}
	return nil
}

// FileType is the lowercase extension of name, or "file" without one.
func FileType(name string) string {
	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if extension == "" {
		return "file"
	}
	return extension
}
