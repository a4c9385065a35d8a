// Package objectstore abstracts the object storage providers snapshots are
// published to. Implementations live in the b2 and s3 subpackages; callers
// select one by configuration and only see this interface.
package objectstore

import (
	"context"
	"time"
)

// Object describes a stored object. ID is provider-specific: B2 needs the
// file id to delete a version, S3 leaves it empty.
type Object struct {
	Key        string
	ID         string
	Size       int64
	UploadedAt time.Time
}

// Store is the provider-agnostic surface the publisher uses.
type Store interface {
	// Provider names the backend ("b2", "s3") for pointer files.
	Provider() string

	// Bucket returns the configured bucket name.
	Bucket() string

	// Upload stores the local file under key.
	Upload(ctx context.Context, localPath, key string) error

	// Download fetches key into localPath, creating parent directories.
	Download(ctx context.Context, key, localPath string) error

	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes one object.
	Delete(ctx context.Context, obj Object) error

	// PublicURL returns the anonymously readable URL for key.
	PublicURL(key string) string
}
