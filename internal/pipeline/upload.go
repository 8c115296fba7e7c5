package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/retry"
)

// ErrBucketNotFound is wrapped by a TransportError when the destination
// bucket does not exist.
var ErrBucketNotFound = errors.New("bucket does not exist")

// Uploader publishes artifacts to the object store.
type Uploader struct {
	Storage StorageService
}

// Upload writes the artifact to <prefix>/<artifact name> in the destination
// bucket. A StageReference is returned only when the object was written.
func (u *Uploader) Upload(ctx context.Context, artifact *domain.BatchArtifact, dest domain.Destination) (domain.StageReference, error) {
	key := dest.ObjectKey(artifact.Name)
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"bucket": dest.Bucket,
		"key":    key,
	})

	ok, err := u.Storage.BucketExists(ctx, dest.Bucket)
	if err != nil {
		return domain.StageReference{}, transportError(dest.Bucket, key, err)
	}
	if !ok {
		return domain.StageReference{}, &TransportError{Bucket: dest.Bucket, Key: key, Err: ErrBucketNotFound}
	}

	if err := u.Storage.UploadFile(ctx, dest.Bucket, key, artifact.Path); err != nil {
		return domain.StageReference{}, transportError(dest.Bucket, key, fmt.Errorf("uploading %s: %w", artifact.Path, err))
	}

	ref := domain.StageReference{Bucket: dest.Bucket, Key: key}
	log.Info().Str("uri", ref.URI()).Msg("Artifact uploaded")
	return ref, nil
}

func transportError(bucket, key string, err error) *TransportError {
	return &TransportError{
		Bucket:    bucket,
		Key:       key,
		Err:       err,
		retryable: retry.IsTransient(err),
	}
}
