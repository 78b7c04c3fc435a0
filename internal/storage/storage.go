// Package storage abstracts the object store the snapshot exporter writes
// to. Implementations cover S3-compatible stores and the local filesystem.
package storage

import (
	"context"
	"errors"
)

// Common errors for object store operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrPutFailed      = errors.New("put failed")
	ErrGetFailed      = errors.New("get failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStore stores immutable blobs under slash-separated paths. Snapshot
// objects are written once and never mutated, so there is no conditional or
// multipart surface.
type ObjectStore interface {
	// Put writes data under objectPath, overwriting any previous object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath. Returns ErrObjectNotFound when
	// no object exists there.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes the object at objectPath. Deleting a missing object
	// is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present at objectPath.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
