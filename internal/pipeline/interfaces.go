package pipeline

import (
	"context"
	"io"

	"github.com/dvloznov/txn-loader/internal/domain"
)

// StorageService is the object store the pipeline publishes artifacts to.
type StorageService interface {
	// BucketExists reports whether the bucket is reachable and present.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// UploadFile uploads a local file under the given object key,
	// overwriting any existing object.
	UploadFile(ctx context.Context, bucket, key, filePath string) error

	// ReadObjectHead returns up to n leading bytes of an object.
	ReadObjectHead(ctx context.Context, bucket, key string, n int64) ([]byte, error)
}

// Catalog answers existence questions about warehouse objects.
type Catalog interface {
	// TableExists reports whether the destination table exists.
	TableExists(ctx context.Context, target domain.LoadTarget) (bool, error)

	// StageLocation returns the source URIs of the stage, or nil when the
	// stage does not exist.
	StageLocation(ctx context.Context, target domain.LoadTarget) ([]string, error)

	// ListStageFiles returns the base names of the files visible through
	// the stage's source URIs.
	ListStageFiles(ctx context.Context, uris []string) ([]string, error)
}

// Loader runs bulk load jobs.
type Loader interface {
	Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error)
}

// Warehouse is an open warehouse session.
type Warehouse interface {
	Catalog
	Loader
	io.Closer
}

// WarehouseOpener opens a warehouse session for one run.
type WarehouseOpener func(ctx context.Context) (Warehouse, error)

// RunRecorder persists run outcomes. Implementations must tolerate being
// called with a partially filled state.
type RunRecorder interface {
	RecordStart(ctx context.Context, state *PipelineState) error
	RecordFinish(ctx context.Context, state *PipelineState, runErr error) error
}
