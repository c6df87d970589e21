package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/trial-balance-export/internal/service"
)

// LocalUploader writes files into a directory.
type LocalUploader struct {
	logger *slog.Logger
	dir    string
}

// NewLocalUploader creates dir if needed.
func NewLocalUploader(dir string, logger *slog.Logger) (*LocalUploader, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalUploader{dir: dir, logger: logger.With("component", "local_archive")}, nil
}

// Upload implements service.Uploader. Existing files are replaced.
func (u *LocalUploader) Upload(ctx context.Context, file service.UploadFile) (*service.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if file.Name == "" || file.Name != filepath.Base(file.Name) {
		return nil, fmt.Errorf("invalid file name %q", file.Name)
	}

	path := filepath.Join(u.dir, file.Name)
	if err := os.WriteFile(path, file.Data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u.logger.Info("wrote file", "path", abs, "bytes", len(file.Data))

	return &service.UploadedFile{
		ID:       abs,
		Name:     file.Name,
		MIMEType: file.MIMEType,
		Link:     "file://" + filepath.ToSlash(abs),
	}, nil
}
