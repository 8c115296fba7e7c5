package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/pipeline"
	"github.com/dvloznov/txn-loader/internal/retry"
)

var testTarget = domain.LoadTarget{
	Project:  "finance-prod-1",
	Dataset:  "finance",
	Table:    "transactions",
	Stage:    "transactions_stage",
	Location: "EU",
}

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func TestUploader_Upload(t *testing.T) {
	storage := &MockStorageService{}
	u := &pipeline.Uploader{Storage: storage}
	artifact := &domain.BatchArtifact{Name: "processed_transaction_20250307.csv", Path: "/tmp/x.csv"}

	ref, err := u.Upload(quietCtx(), artifact, domain.Destination{Bucket: "txn-exports", Prefix: "transactions"})
	require.NoError(t, err)

	assert.Equal(t, "gs://txn-exports/transactions/processed_transaction_20250307.csv", ref.URI())
	assert.Equal(t, artifact.Name, ref.FileName())
	assert.Equal(t, []string{"txn-exports/transactions/processed_transaction_20250307.csv"}, storage.Uploads())
}

func TestUploader_Failures(t *testing.T) {
	artifact := &domain.BatchArtifact{Name: "a.csv", Path: "/tmp/a.csv"}
	dest := domain.Destination{Bucket: "txn-exports", Prefix: "transactions"}

	t.Run("bucket missing", func(t *testing.T) {
		storage := &MockStorageService{
			BucketExistsFunc: func(ctx context.Context, bucket string) (bool, error) { return false, nil },
		}
		_, err := (&pipeline.Uploader{Storage: storage}).Upload(quietCtx(), artifact, dest)

		var terr *pipeline.TransportError
		require.ErrorAs(t, err, &terr)
		assert.ErrorIs(t, err, pipeline.ErrBucketNotFound)
		assert.False(t, terr.Retryable())
		assert.Empty(t, storage.Uploads())
	})

	t.Run("access denied", func(t *testing.T) {
		storage := &MockStorageService{
			UploadFileFunc: func(ctx context.Context, bucket, key, filePath string) error {
				return &googleapi.Error{Code: 403}
			},
		}
		_, err := (&pipeline.Uploader{Storage: storage}).Upload(quietCtx(), artifact, dest)

		var terr *pipeline.TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "transactions/a.csv", terr.Key)
		assert.False(t, terr.Retryable())
	})

	t.Run("service unavailable", func(t *testing.T) {
		storage := &MockStorageService{
			UploadFileFunc: func(ctx context.Context, bucket, key, filePath string) error {
				return &googleapi.Error{Code: 503}
			},
		}
		_, err := (&pipeline.Uploader{Storage: storage}).Upload(quietCtx(), artifact, dest)

		var terr *pipeline.TransportError
		require.ErrorAs(t, err, &terr)
		assert.True(t, terr.Retryable())
		assert.True(t, retry.IsRetryable(err))
	})
}

func TestVerifier_Order(t *testing.T) {
	ref := domain.StageReference{Bucket: "txn-exports", Key: "transactions/a.csv"}

	t.Run("all present", func(t *testing.T) {
		wh := &MockWarehouse{
			ListStageFilesFunc: func(ctx context.Context, uris []string) ([]string, error) {
				assert.Equal(t, []string{"gs://txn-exports/transactions/*"}, uris)
				return []string{"b.csv", "a.csv"}, nil
			},
		}
		err := (&pipeline.Verifier{Catalog: wh}).Verify(quietCtx(), testTarget, ref)
		require.NoError(t, err)
		assert.Equal(t, []string{"TableExists", "StageLocation", "ListStageFiles"}, wh.Calls())
	})

	t.Run("table missing stops early", func(t *testing.T) {
		wh := &MockWarehouse{
			TableExistsFunc: func(ctx context.Context, target domain.LoadTarget) (bool, error) { return false, nil },
		}
		err := (&pipeline.Verifier{Catalog: wh}).Verify(quietCtx(), testTarget, ref)

		var verr *pipeline.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, pipeline.CheckTable, verr.Check)
		assert.Nil(t, verr.Err)
		assert.False(t, verr.Retryable())
		assert.Equal(t, []string{"TableExists"}, wh.Calls())
	})

	t.Run("stage missing", func(t *testing.T) {
		wh := &MockWarehouse{
			StageLocationFunc: func(ctx context.Context, target domain.LoadTarget) ([]string, error) { return nil, nil },
		}
		err := (&pipeline.Verifier{Catalog: wh}).Verify(quietCtx(), testTarget, ref)

		var verr *pipeline.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, pipeline.CheckStage, verr.Check)
		assert.Equal(t, []string{"TableExists", "StageLocation"}, wh.Calls())
	})

	t.Run("file not visible", func(t *testing.T) {
		wh := &MockWarehouse{
			ListStageFilesFunc: func(ctx context.Context, uris []string) ([]string, error) {
				return []string{"other.csv"}, nil
			},
		}
		err := (&pipeline.Verifier{Catalog: wh}).Verify(quietCtx(), testTarget, ref)

		var verr *pipeline.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, pipeline.CheckFile, verr.Check)
		assert.Equal(t, "a.csv", verr.File)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("transient lookup error is retryable", func(t *testing.T) {
		wh := &MockWarehouse{
			TableExistsFunc: func(ctx context.Context, target domain.LoadTarget) (bool, error) {
				return false, &googleapi.Error{Code: 500}
			},
		}
		err := (&pipeline.Verifier{Catalog: wh}).Verify(quietCtx(), testTarget, ref)

		var verr *pipeline.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.Retryable())
	})
}

func TestBulkLoader_Load(t *testing.T) {
	ref := domain.StageReference{Bucket: "txn-exports", Key: "transactions/a.csv"}

	t.Run("passes header and defaults", func(t *testing.T) {
		storage := &MockStorageService{
			ReadObjectHeadFunc: func(ctx context.Context, bucket, key string, n int64) ([]byte, error) {
				return []byte("\ufeffRegion,user_id\r\nNY,1\n"), nil
			},
		}
		var got domain.LoadRequest
		wh := &MockWarehouse{
			LoadFunc: func(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
				got = req
				return domain.LoadResult{JobID: req.JobID, RowsLoaded: 1}, nil
			},
		}

		loader := &pipeline.BulkLoader{Warehouse: wh, Storage: storage}
		res, err := loader.Load(quietCtx(), testTarget, ref, "job_1")
		require.NoError(t, err)

		assert.Equal(t, int64(1), res.RowsLoaded)
		assert.Equal(t, []string{"Region", "user_id"}, got.Columns)
		assert.Equal(t, int64(pipeline.DefaultMaxBadRecords), got.MaxBadRecords)
		assert.Equal(t, "job_1", got.JobID)
		assert.Equal(t, ref, got.Ref)
	})

	t.Run("job failure", func(t *testing.T) {
		cause := errors.New("column mismatch")
		wh := &MockWarehouse{
			LoadFunc: func(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
				return domain.LoadResult{}, cause
			},
		}

		_, err := (&pipeline.BulkLoader{Warehouse: wh, Storage: &MockStorageService{}}).Load(quietCtx(), testTarget, ref, "job_2")

		var lerr *pipeline.LoadError
		require.ErrorAs(t, err, &lerr)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "transactions", lerr.Table)
		assert.False(t, lerr.Retryable())
	})
}

func TestParseHeader(t *testing.T) {
	cols, err := pipeline.ParseHeader([]byte("user_id, amount ,\"region\"\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id", "amount", "region"}, cols)

	_, err = pipeline.ParseHeader(nil)
	assert.Error(t, err)
}
