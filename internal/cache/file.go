package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fragmentExt = ".frag"

// FileStore keeps one file per fragment in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = ".blockpage/cache"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StoreError{Backend: "file", Op: "open", Err: err}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(hash string) (string, error) {
	if hash == "" || strings.ContainsAny(hash, `/\.`) {
		return "", fmt.Errorf("invalid hash %q", hash)
	}
	return filepath.Join(s.dir, hash+fragmentExt), nil
}

// Get reads a fragment.
func (s *FileStore) Get(_ context.Context, hash string) (string, bool, error) {
	p, err := s.path(hash)
	if err != nil {
		return "", false, &StoreError{Backend: "file", Op: "get", Hash: hash, Err: err}
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Backend: "file", Op: "get", Hash: hash, Err: err}
	}
	return string(data), true, nil
}

// Exists reports whether a fragment file is present.
func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	p, err := s.path(hash)
	if err != nil {
		return false, &StoreError{Backend: "file", Op: "exists", Hash: hash, Err: err}
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Backend: "file", Op: "exists", Hash: hash, Err: err}
	}
	return true, nil
}

// Put writes a fragment atomically.
func (s *FileStore) Put(_ context.Context, hash, content string) error {
	p, err := s.path(hash)
	if err != nil {
		return &StoreError{Backend: "file", Op: "put", Hash: hash, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, "."+hash+".*")
	if err != nil {
		return &StoreError{Backend: "file", Op: "put", Hash: hash, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return &StoreError{Backend: "file", Op: "put", Hash: hash, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Backend: "file", Op: "put", Hash: hash, Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return &StoreError{Backend: "file", Op: "put", Hash: hash, Err: err}
	}
	return nil
}

// Delete removes a fragment file.
func (s *FileStore) Delete(_ context.Context, hash string) error {
	p, err := s.path(hash)
	if err != nil {
		return &StoreError{Backend: "file", Op: "delete", Hash: hash, Err: err}
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Backend: "file", Op: "delete", Hash: hash, Err: err}
	}
	return nil
}

// Flush removes every fragment file. Other files in the directory are left
// alone.
func (s *FileStore) Flush(_ context.Context) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fragmentExt))
	if err != nil {
		return &StoreError{Backend: "file", Op: "flush", Err: err}
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StoreError{Backend: "file", Op: "flush", Err: err}
		}
	}
	return nil
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
