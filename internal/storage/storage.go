package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage provides an abstraction over key-value style document storage.
// Write must replace the whole document atomically: a concurrent Read sees
// either the old or the new bytes, never a partial write.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// cleanKey normalizes a slash-separated key and rejects keys that would
// escape the storage root.
func cleanKey(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty storage path")
	}
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("invalid storage path %q", p)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if seg == ".." {
			return "", fmt.Errorf("storage path %q escapes the root", p)
		}
	}
	return strings.TrimPrefix(clean, "/"), nil
}
