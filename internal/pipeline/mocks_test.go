package pipeline_test

import (
	"context"
	"sync"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/pipeline"
)

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	BucketExistsFunc   func(ctx context.Context, bucket string) (bool, error)
	UploadFileFunc     func(ctx context.Context, bucket, key, filePath string) error
	ReadObjectHeadFunc func(ctx context.Context, bucket, key string, n int64) ([]byte, error)

	mu      sync.Mutex
	uploads []string
}

func (m *MockStorageService) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if m.BucketExistsFunc != nil {
		return m.BucketExistsFunc(ctx, bucket)
	}
	return true, nil
}

func (m *MockStorageService) UploadFile(ctx context.Context, bucket, key, filePath string) error {
	m.mu.Lock()
	m.uploads = append(m.uploads, bucket+"/"+key)
	m.mu.Unlock()
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucket, key, filePath)
	}
	return nil
}

func (m *MockStorageService) ReadObjectHead(ctx context.Context, bucket, key string, n int64) ([]byte, error) {
	if m.ReadObjectHeadFunc != nil {
		return m.ReadObjectHeadFunc(ctx, bucket, key, n)
	}
	return []byte("user_id,transaction_id,amount,timestamp,merchant_category,region\n"), nil
}

func (m *MockStorageService) Uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploads...)
}

// MockWarehouse is a mock implementation of Warehouse for testing. Calls
// are recorded by method name in order.
type MockWarehouse struct {
	TableExistsFunc    func(ctx context.Context, target domain.LoadTarget) (bool, error)
	StageLocationFunc  func(ctx context.Context, target domain.LoadTarget) ([]string, error)
	ListStageFilesFunc func(ctx context.Context, uris []string) ([]string, error)
	LoadFunc           func(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error)
	CloseFunc          func() error

	mu     sync.Mutex
	calls  []string
	closed int
}

func (m *MockWarehouse) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockWarehouse) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockWarehouse) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockWarehouse) TableExists(ctx context.Context, target domain.LoadTarget) (bool, error) {
	m.record("TableExists")
	if m.TableExistsFunc != nil {
		return m.TableExistsFunc(ctx, target)
	}
	return true, nil
}

func (m *MockWarehouse) StageLocation(ctx context.Context, target domain.LoadTarget) ([]string, error) {
	m.record("StageLocation")
	if m.StageLocationFunc != nil {
		return m.StageLocationFunc(ctx, target)
	}
	return []string{"gs://txn-exports/transactions/*"}, nil
}

func (m *MockWarehouse) ListStageFiles(ctx context.Context, uris []string) ([]string, error) {
	m.record("ListStageFiles")
	if m.ListStageFilesFunc != nil {
		return m.ListStageFilesFunc(ctx, uris)
	}
	return nil, nil
}

func (m *MockWarehouse) Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
	m.record("Load")
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, req)
	}
	return domain.LoadResult{JobID: req.JobID}, nil
}

func (m *MockWarehouse) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockRunRecorder is a mock implementation of RunRecorder for testing.
type MockRunRecorder struct {
	RecordStartFunc  func(ctx context.Context, state *pipeline.PipelineState) error
	RecordFinishFunc func(ctx context.Context, state *pipeline.PipelineState, runErr error) error
}

func (m *MockRunRecorder) RecordStart(ctx context.Context, state *pipeline.PipelineState) error {
	if m.RecordStartFunc != nil {
		return m.RecordStartFunc(ctx, state)
	}
	return nil
}

func (m *MockRunRecorder) RecordFinish(ctx context.Context, state *pipeline.PipelineState, runErr error) error {
	if m.RecordFinishFunc != nil {
		return m.RecordFinishFunc(ctx, state, runErr)
	}
	return nil
}

var (
	_ pipeline.StorageService = (*MockStorageService)(nil)
	_ pipeline.Warehouse      = (*MockWarehouse)(nil)
	_ pipeline.RunRecorder    = (*MockRunRecorder)(nil)
)
