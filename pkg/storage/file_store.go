package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileRefPrefix = "file://"

// FileStore saves archived documents to disk under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

// Upload writes data to <base>/content/<user>/<key>.
func (f *FileStore) Upload(_ context.Context, userID, key string, data []byte) (string, error) {
	rel, err := objectKey(userID, key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(f.basePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fileRefPrefix + target, nil
}

// Delete removes the file behind ref. Missing files are not an error.
func (f *FileStore) Delete(_ context.Context, ref string) error {
	target, ok := strings.CutPrefix(ref, fileRefPrefix)
	if !ok {
		return fmt.Errorf("ref %q is not a file ref", ref)
	}
	rel, err := filepath.Rel(f.basePath, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("ref %q is outside %s", ref, f.basePath)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
