package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore hides where attachment bytes live. The core never inspects
// content; it only records the returned path plus caller-supplied
// size/mime metadata.
type BlobStore interface {
	Store(data []byte, destinationHint string) (string, error)
	Delete(path string) error
	Exists(path string) bool
}

type diskStore struct {
	root string
}

// NewDisk returns a BlobStore rooted at dir, creating it if needed.
func NewDisk(dir string) (BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &diskStore{root: dir}, nil
}

func (s *diskStore) Store(data []byte, destinationHint string) (string, error) {
	dir := filepath.Join(s.root, filepath.Clean("/"+destinationHint))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString()
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", err
	}
	return rel, nil
}

func (s *diskStore) Delete(path string) error {
	full := filepath.Join(s.root, filepath.Clean("/"+path))
	err := os.Remove(full)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *diskStore) Exists(path string) bool {
	full := filepath.Join(s.root, filepath.Clean("/"+path))
	_, err := os.Stat(full)
	return err == nil
}
