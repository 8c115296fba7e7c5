package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// BucketExists reports whether the bucket exists and is accessible.
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// ReadObjectHead returns up to n leading bytes of an object.
	ReadObjectHead(ctx context.Context, bucketName, objectName string, n int64) ([]byte, error)

	ObjectLister
}

// ObjectLister lists objects under a prefix.
type ObjectLister interface {
	// ListObjectNames returns the full names of objects whose name starts
	// with prefix.
	ListObjectNames(ctx context.Context, bucketName, prefix string) ([]string, error)
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

// ListPrefix returns the object prefix a wildcard URI such as
// "gs://bucket/transactions/*" covers, i.e. everything before the first
// wildcard character.
func ListPrefix(object string) string {
	if i := strings.IndexAny(object, "*?["); i >= 0 {
		return object[:i]
	}
	return object
}

// ExtractFilename extracts the filename from a GCS URI or object name.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func ExtractFilename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if strings.HasPrefix(uri, "gs://") {
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) < 2 {
			return trimmed
		}
		trimmed = parts[1]
	}
	return path.Base(trimmed)
}
