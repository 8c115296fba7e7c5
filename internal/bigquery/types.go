package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/txn-loader/internal/domain"
)

// Run ledger statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// CatalogRepository provides an interface for warehouse metadata lookups.
type CatalogRepository interface {
	// TableExists reports whether target.Table is a base table in the target dataset.
	TableExists(ctx context.Context, target domain.LoadTarget) (bool, error)

	// StageLocation returns the source URIs of the external table target.Stage,
	// or nil when no such external table exists.
	StageLocation(ctx context.Context, target domain.LoadTarget) ([]string, error)

	// ListStageFiles returns the base names of objects matched by the given URIs.
	ListStageFiles(ctx context.Context, uris []string) ([]string, error)
}

// LoadRepository provides an interface for bulk load jobs.
type LoadRepository interface {
	// Load runs (or re-attaches to) the load job described by req and waits for it.
	Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error)
}

// RunRepository provides an interface for the run ledger.
type RunRepository interface {
	// StartRun inserts a new run with status=RUNNING.
	StartRun(ctx context.Context, row *LoadRunRow) error

	// FinishRun sets the outcome columns of an existing run.
	FinishRun(ctx context.Context, row *LoadRunRow) error
}

// LoadRunRow represents one pipeline run in the run ledger table.
type LoadRunRow struct {
	RunID        string `bigquery:"run_id"`     // REQUIRED
	InputFile    string `bigquery:"input_file"` // REQUIRED
	ArtifactName string `bigquery:"artifact_name"`

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`
	FailedStage  string `bigquery:"failed_stage"`
	ErrorMessage string `bigquery:"error_message"`

	RowsLoaded   bigquery.NullInt64 `bigquery:"rows_loaded"`
	RowsRejected bigquery.NullInt64 `bigquery:"rows_rejected"`
	RowsSkipped  bigquery.NullInt64 `bigquery:"rows_skipped"`
}
