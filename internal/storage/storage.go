// Package storage defines the object store holding reference photos.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceverify/internal/imaging"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store uploads, signs, reads and deletes blobs by key.
type Store interface {
	// Put stores data under <root>/<folder>/<name> and returns the key.
	// An empty name is replaced with a random one.
	Put(ctx context.Context, folder, name, contentType string, data []byte) (string, error)
	// SignedURL returns a URL the image acquirer can fetch until expiry.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Open returns the object's contents.
	Open(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Missing objects yield ErrNotFound.
	Delete(ctx context.Context, key string) error
}

// BuildKey joins the key prefix, folder and object name. When name is empty
// a uuid with an extension matching contentType is generated.
func BuildKey(rootPath, folder, name, contentType string) string {
	if name == "" {
		name = uuid.NewString() + imaging.ExtensionFor(contentType)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{rootPath, folder, name} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return path.Join(parts...)
}
