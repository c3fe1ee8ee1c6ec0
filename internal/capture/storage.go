package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage defines the interface for object storage operations
type Storage interface {
	// Upload stores data under path and returns its public URL
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// FileSource serves stored objects back by path. Only storage kept on this
// host implements it.
type FileSource interface {
	// Get retrieves an object by path
	Get(path string) ([]byte, error)
}

var errInvalidPath = errors.New("invalid object path")

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath  string
	publicURL string
}

// NewLocalStorage creates a new LocalStorage instance. publicURL is the
// prefix objects are served under, e.g. "http://localhost:8080/files".
func NewLocalStorage(basePath, publicURL string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:  basePath,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Upload writes the object below the base path
func (l *LocalStorage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, err := l.resolve(objectPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return l.publicURL + "/" + escapePath(objectPath), nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(objectPath string) ([]byte, error) {
	fullPath, err := l.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// resolve maps an object path onto the filesystem, refusing to leave basePath
func (l *LocalStorage) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("%w: %q", errInvalidPath, objectPath)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), nil
}

// escapePath URL-escapes each segment of an object path
func escapePath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
