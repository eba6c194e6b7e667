package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/bkps-admin/interfaces"
)

// FileArtifact is an artifact stored in a single local file.
type FileArtifact struct {
	path string
	log  *slog.Logger
}

func NewFileArtifact(path string, log *slog.Logger) *FileArtifact {
	return &FileArtifact{path: path, log: log}
}

// Fetch reads the file. Returns ErrContentNotFound if it does not exist.
func (a *FileArtifact) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	a.log.Debug("Fetched artifact from file",
		slog.String("path", a.path),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data to the file, creating parent directories as needed.
// Outputs may contain key material, so the file is owner-readable only.
func (a *FileArtifact) Store(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	a.log.Debug("Stored artifact in file",
		slog.String("path", a.path),
		slog.Int("size", len(data)))

	return nil
}

// LocationURI returns the path as the operator gave it.
func (a *FileArtifact) LocationURI() string {
	return a.path
}
