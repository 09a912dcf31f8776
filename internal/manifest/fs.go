package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps manifests as files in one directory.
type FSStore struct {
	dir string
}

// NewFSStore creates dir if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("manifest directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Put writes the manifest atomically: to a temp file, then renamed.
func (s *FSStore) Put(_ context.Context, m *Manifest) (string, error) {
	data, err := marshal(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, m.Key())
	tmp, err := os.CreateTemp(s.dir, ".manifest-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func (s *FSStore) Get(_ context.Context, key string) (*Manifest, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
