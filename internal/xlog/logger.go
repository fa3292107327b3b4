package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/michael-freling/telecloud/internal/config"
)

// New writes JSON logs into <log directory>/<environment>.log, and also to
// stdout in development.
func New(conf config.Config) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(conf.LogDirectory, 0755); err != nil {
		return nil, nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	logFile := filepath.Join(conf.LogDirectory, string(conf.Environment)+".log")
	file, err := os.OpenFile(
		logFile,
		os.O_RDWR|os.O_APPEND|os.O_CREATE,
		0644,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("os.OpenFile: %w", err)
	}

	var slogHandler slog.Handler
	if conf.Environment == config.EnvironmentDevelopment {
		slogHandler = slog.NewJSONHandler(
			io.MultiWriter(os.Stdout, file),
			&slog.HandlerOptions{
				Level: slog.LevelDebug,
			},
		)
	} else {
		slogHandler = slog.NewJSONHandler(
			file,
			&slog.HandlerOptions{
				Level: slog.LevelInfo,
			},
		)
	}
	return slog.New(slogHandler), file, nil
}
