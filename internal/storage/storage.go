// Package storage stages uploaded dataset archives in object storage.
// Archives are written once by an uploader and read back by the importer,
// which downloads them into its scratch directory before opening.
package storage

import (
	"context"
	"errors"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
)

// Common errors for storage operations.
var (
	// ErrObjectNotFound matches with errors.Is any NOT_FOUND/OBJECT_NOT_FOUND error.
	ErrObjectNotFound = lerrors.NewNotFoundError(lerrors.CodeObjectNotFound, "object not found")

	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding staged archives.
type ObjectStorage interface {
	// Upload copies the local file to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file, creating parent
	// directories. A missing object yields ErrObjectNotFound.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether objectPath exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
