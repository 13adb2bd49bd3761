// Package cache persists the last successfully fetched upstream payload.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the cache file name inside the data directory.
const FileName = "data.json"

// File is the on-disk copy of the latest raw snapshot payload.
type File struct {
	path string
}

// New returns a File at path.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Write replaces the cached payload atomically.
func (f *File) Write(raw []byte) error {
	if err := WriteAtomic(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Read returns the cached payload and its modification time. A missing file
// yields a nil payload and no error.
func (f *File) Read() ([]byte, time.Time, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("stat cache: %w", err)
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache: %w", err)
	}
	return raw, info.ModTime(), nil
}

// Remove deletes the cache file if present.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache: %w", err)
	}
	return nil
}

// WriteAtomic writes data to a temporary file next to path, syncs it and
// renames it over path.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
