package gcsuploader

import (
	"context"

	"google.golang.org/api/option"

	"github.com/dvloznov/txn-loader/internal/gcs"
)

// Re-export interface from shared package
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage. Every call opens and closes its
// own client.
type GCSStorageService struct {
	opts []option.ClientOption
}

// NewGCSStorageService creates a new instance of GCSStorageService. An empty
// credentialsFile means Application Default Credentials. A non-empty
// project is billed for quota on every storage call.
func NewGCSStorageService(credentialsFile, project string) *GCSStorageService {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	return &GCSStorageService{opts: opts}
}

// BucketExists delegates to BucketExists.
func (s *GCSStorageService) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return BucketExists(ctx, bucketName, s.opts...)
}

// UploadFile delegates to UploadFile.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return UploadFile(ctx, bucketName, objectName, filePath, s.opts...)
}

// ReadObjectHead delegates to ReadObjectHead.
func (s *GCSStorageService) ReadObjectHead(ctx context.Context, bucketName, objectName string, n int64) ([]byte, error) {
	return ReadObjectHead(ctx, bucketName, objectName, n, s.opts...)
}

// ListObjectNames delegates to ListObjectNames.
func (s *GCSStorageService) ListObjectNames(ctx context.Context, bucketName, prefix string) ([]string, error) {
	return ListObjectNames(ctx, bucketName, prefix, s.opts...)
}

var _ StorageService = (*GCSStorageService)(nil)
