// Package blob stores uploaded files and derived artifacts (image variants,
// parsed menus) by key.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
}

// Join builds a slash-separated key, dropping empty elements.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}
