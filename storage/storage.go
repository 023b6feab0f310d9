// Package storage holds the bytes behind file records. The relational
// ledger only keeps the key a blob was stored under.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no blob behind it.
var ErrNotFound = errors.New("storage: blob not found")

// BlobStore is the capability the conversation ledger consumes.
type BlobStore interface {
	// Put stores the stream under a fresh key derived from name and
	// returns the key and the number of bytes written.
	Put(ctx context.Context, name string, r io.Reader) (string, int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns "<uuid>-<name>" with any directory part of name removed.
func NewKey(name string) string {
	return uuid.NewString() + "-" + cleanName(name)
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "file"
	}
	return base
}

// validKey rejects keys that could escape the store's namespace.
func validKey(key string) bool {
	return key != "" && key == filepath.Base(key) && key != "." && key != ".." &&
		!strings.ContainsAny(key, "/\\")
}
