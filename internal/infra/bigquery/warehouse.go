package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	bq "github.com/dvloznov/txn-loader/internal/bigquery"
	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/gcs"
)

// Re-export interfaces from shared package
type CatalogRepository = bq.CatalogRepository
type LoadRepository = bq.LoadRepository
type RunRepository = bq.RunRepository
type LoadRunRow = bq.LoadRunRow

// BigQueryWarehouse is the concrete warehouse session. It holds a shared
// BigQuery client for catalog lookups and load jobs, and lists stage files
// through the object store.
type BigQueryWarehouse struct {
	client *bigquery.Client
	files  gcs.ObjectLister
}

// NewBigQueryWarehouse opens a BigQuery client for project. Every query and
// job it runs is placed in location.
func NewBigQueryWarehouse(ctx context.Context, project, location string, files gcs.ObjectLister, opts ...option.ClientOption) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: creating client: %w", err)
	}
	client.Location = location

	return &BigQueryWarehouse{
		client: client,
		files:  files,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the run ends to release resources.
func (w *BigQueryWarehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// TableExists delegates to TableExistsWithClient with the shared client.
func (w *BigQueryWarehouse) TableExists(ctx context.Context, target domain.LoadTarget) (bool, error) {
	return TableExistsWithClient(ctx, w.client, target)
}

// StageLocation delegates to StageLocationWithClient with the shared client.
func (w *BigQueryWarehouse) StageLocation(ctx context.Context, target domain.LoadTarget) ([]string, error) {
	return StageLocationWithClient(ctx, w.client, target)
}

// ListStageFiles delegates to ListStageFiles with the warehouse's lister.
func (w *BigQueryWarehouse) ListStageFiles(ctx context.Context, uris []string) ([]string, error) {
	return ListStageFiles(ctx, w.files, uris)
}

// Load delegates to LoadWithClient with the shared client.
func (w *BigQueryWarehouse) Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
	return LoadWithClient(ctx, w.client, req)
}

var (
	_ CatalogRepository = (*BigQueryWarehouse)(nil)
	_ LoadRepository    = (*BigQueryWarehouse)(nil)
)
