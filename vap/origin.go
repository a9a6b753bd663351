package vap

import (
	"context"
	"errors"
)

// ErrNotFound reports that an origin has no object for the key.
var ErrNotFound = errors.New("vap: asset not found")

// Origin is a remote fallback source for asset keys that miss both the
// in-memory store and the project root. Used for packaged app bundles
// distributed through object storage.
type Origin interface {
	// Fetch returns the payload and MIME type for key, or ErrNotFound.
	Fetch(ctx context.Context, key string) (data []byte, mime string, err error)
}
