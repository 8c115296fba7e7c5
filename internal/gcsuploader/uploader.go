package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// csvContentType is set on every uploaded artifact.
const csvContentType = "text/csv"

// UploadFile uploads a local file to a GCS bucket under the given object name,
// replacing any existing object. Without options it uses Application Default
// Credentials (gcloud auth application-default login).
func UploadFile(ctx context.Context, bucketName, objectName, filePath string, opts ...option.ClientOption) error {
	// Open local file
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = csvContentType

	if _, err := io.Copy(w, f); err != nil {
		// Closing an aborted writer discards the partial object.
		cancel()
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of gs://%s/%s: %w", bucketName, objectName, err)
	}

	return nil
}

// BucketExists reports whether bucketName exists. A missing bucket is not an
// error; permission and transport failures are.
func BucketExists(ctx context.Context, bucketName string, opts ...option.ClientOption) (bool, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return false, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	return bucketExistsWithClient(ctx, client, bucketName)
}

func bucketExistsWithClient(ctx context.Context, client *storage.Client, bucketName string) (bool, error) {
	_, err := client.Bucket(bucketName).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bucket attrs %q: %w", bucketName, err)
	}
	return true, nil
}
