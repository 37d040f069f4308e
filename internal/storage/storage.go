// Package storage holds uploaded files behind a small object interface so the
// local-disk implementation can be swapped for a bucket later.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStorage stores uploaded files and hands back a public URL.
type ObjectStorage interface {
	// Save writes the object and returns its key and public URL.
	Save(filename string, r io.Reader) (key string, url string, err error)

	// Open returns the object contents for reading.
	Open(key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(key string) error
}

// Local stores objects under a directory on disk.
type Local struct {
	dir       string
	publicURL string
}

func NewLocal(dir, publicURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}
	return &Local{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Save writes under a date-prefixed unique key so uploads never collide and
// the original filename cannot traverse out of the storage directory.
func (l *Local) Save(filename string, r io.Reader) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := fmt.Sprintf("%s/%s%s", time.Now().Format("2006-01-02"), uuid.NewString(), ext)

	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("create object dir failed: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create object file failed: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("write object failed: %w", err)
	}
	return key, l.publicURL + "/" + key, nil
}

func (l *Local) Open(key string) (io.ReadCloser, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open object failed: %w", err)
	}
	return f, nil
}

func (l *Local) Delete(key string) error {
	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object failed: %w", err)
	}
	return nil
}

func (l *Local) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.dir, clean), nil
}
