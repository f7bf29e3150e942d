package chat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCacheDir is where a FileStore keeps histories when no directory is given.
const DefaultCacheDir = "./cache"

// Store persists session histories under a key.
type Store interface {
	// Load returns the cached entries. A missing key yields an error
	// matching ErrNoCache.
	Load(ctx context.Context, key string) ([]Entry, error)
	Save(ctx context.Context, key string, entries []Entry) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// FileStore keeps one YAML file per key in a directory.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir (DefaultCacheDir when empty).
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultCacheDir
	}
	return &FileStore{Dir: dir}
}

// CheckKey rejects keys that are empty, contain a path separator or are a
// relative path element.
func CheckKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Path returns the file a key is stored in.
func (s *FileStore) Path(key string) (string, error) {
	if err := CheckKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, key+".yaml"), nil
}

func (s *FileStore) Load(_ context.Context, key string) ([]Entry, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	entries, err := readEntries(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNoCache, err)
	}
	return entries, err
}

func (s *FileStore) Save(_ context.Context, key string, entries []Entry) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	return writeEntries(path, entries)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache %s: %w", key, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
