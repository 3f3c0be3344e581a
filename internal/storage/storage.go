// Package storage persists uploaded multimedia files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore stores and removes file contents by relative path.
type FileStore interface {
	// Save writes data under name and returns the public URL of the file.
	Save(ctx context.Context, data []byte, name string) (string, error)
	// Delete removes the file. Missing files are not an error.
	Delete(ctx context.Context, name string) error
}

// ErrInvalidName is returned for names that escape the storage root.
var ErrInvalidName = errors.New("invalid file name")

type localStore struct {
	root      string
	publicURL string
}

// NewLocal creates a FileStore rooted at a local directory. Files are served
// under publicURL.
func NewLocal(root, publicURL string) (FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &localStore{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *localStore) Save(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	// Write to a temporary file first so readers never see a partial upload.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return s.publicURL + "/" + path.Clean(filepath.ToSlash(name)), nil
}

func (s *localStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *localStore) resolve(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}
