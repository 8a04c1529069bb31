// Package artifacts is the object-storage boundary. Analysis never touches
// artifact bytes directly; everything moves through opaque locators so the
// backing store can change without touching the pipeline.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes blobs by opaque locator.
type Store interface {
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
	Store(ctx context.Context, locator string, r io.Reader) (string, error)
}

// FSStore keeps blobs under a single root directory. It is the default
// backend; deployments with object storage swap in their own Store.
type FSStore struct {
	root string
}

// NewFSStore builds a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact store root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// Fetch opens the blob at the locator for reading.
func (s *FSStore) Fetch(_ context.Context, locator string) (io.ReadCloser, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", locator, err)
	}
	return f, nil
}

// Store writes the blob and returns the locator it is reachable under.
// Writes go through a temp file and rename so a crashed write never leaves
// a half-written blob at a valid locator.
func (s *FSStore) Store(_ context.Context, locator string, r io.Reader) (string, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	return locator, nil
}

func (s *FSStore) resolve(locator string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(locator))
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid artifact locator %q", locator)
	}
	return filepath.Join(s.root, cleaned), nil
}
