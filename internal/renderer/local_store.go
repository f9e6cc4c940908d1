package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore writes images under a directory served by the API at URLPrefix.
type LocalObjectStore struct {
	dir    string
	prefix string
}

func NewLocalObjectStore(dir, urlPrefix string) (*LocalObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalObjectStore{dir: dir, prefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory images are written to.
func (s *LocalObjectStore) Dir() string { return s.dir }

func (s *LocalObjectStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.prefix + "/" + key, nil
}

func (s *LocalObjectStore) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(s.prefix, url)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// Path resolves an image URL issued by this store to its file on disk.
func (s *LocalObjectStore) Path(url string) (string, error) {
	key, err := keyFromURL(s.prefix, url)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}
