package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	bq "github.com/dvloznov/txn-loader/internal/bigquery"
	"github.com/dvloznov/txn-loader/internal/config"
	"github.com/dvloznov/txn-loader/internal/pipeline"
)

const maxErrorMessageLen = 2000

// RunLedger records pipeline runs in a BigQuery table. Each call opens and
// closes its own client so a ledger outage never holds run resources.
type RunLedger struct {
	project string
	dataset string
	table   string
	opts    []option.ClientOption
}

// NewRunLedger creates a ledger writing to project.dataset.table.
func NewRunLedger(project, dataset, table string, opts ...option.ClientOption) (*RunLedger, error) {
	if _, err := qualifiedTable(project, dataset, table); err != nil {
		return nil, fmt.Errorf("NewRunLedger: %w", err)
	}
	return &RunLedger{project: project, dataset: dataset, table: table, opts: opts}, nil
}

// StartRun inserts a new run with status=RUNNING.
func (l *RunLedger) StartRun(ctx context.Context, row *LoadRunRow) error {
	client, err := bigquery.NewClient(ctx, l.project, l.opts...)
	if err != nil {
		return fmt.Errorf("StartRun: bigquery client: %w", err)
	}
	defer client.Close()

	return StartRunWithClient(ctx, client, l.dataset, l.table, row)
}

// FinishRun records the outcome of a run.
func (l *RunLedger) FinishRun(ctx context.Context, row *LoadRunRow) error {
	client, err := bigquery.NewClient(ctx, l.project, l.opts...)
	if err != nil {
		return fmt.Errorf("FinishRun: bigquery client: %w", err)
	}
	defer client.Close()

	return FinishRunWithClient(ctx, client, l.dataset, l.table, row)
}

// EnsureTable creates the ledger table if it does not exist yet.
func (l *RunLedger) EnsureTable(ctx context.Context) error {
	client, err := bigquery.NewClient(ctx, l.project, l.opts...)
	if err != nil {
		return fmt.Errorf("EnsureTable: bigquery client: %w", err)
	}
	defer client.Close()

	return EnsureRunsTableWithClient(ctx, client, l.dataset, l.table)
}

// RecordStart implements pipeline.RunRecorder.
func (l *RunLedger) RecordStart(ctx context.Context, state *pipeline.PipelineState) error {
	return l.StartRun(ctx, RunRowFromState(state, nil))
}

// RecordFinish implements pipeline.RunRecorder.
func (l *RunLedger) RecordFinish(ctx context.Context, state *pipeline.PipelineState, runErr error) error {
	return l.FinishRun(ctx, RunRowFromState(state, runErr))
}

// RunRowFromState maps run state onto a ledger row. A nil runErr on a
// finished state means success.
func RunRowFromState(state *pipeline.PipelineState, runErr error) *LoadRunRow {
	row := &LoadRunRow{
		RunID:     state.RunID,
		InputFile: state.InputPath,
		StartedTS: state.StartedAt,
		Status:    bq.RunStatusRunning,
	}

	if state.Artifact != nil {
		row.ArtifactName = state.Artifact.Name
		row.RowsSkipped = bigquery.NullInt64{Int64: int64(state.Artifact.Skipped), Valid: true}
	}
	if state.Result != nil {
		row.RowsLoaded = bigquery.NullInt64{Int64: state.Result.RowsLoaded, Valid: true}
		row.RowsRejected = bigquery.NullInt64{Int64: state.Result.RowsRejected, Valid: true}
	}

	switch state.Stage {
	case pipeline.StageDone:
		row.Status = bq.RunStatusSucceeded
	case pipeline.StageFailed:
		row.Status = bq.RunStatusFailed
		row.FailedStage = string(state.FailedStep)
	}
	if runErr != nil {
		row.Status = bq.RunStatusFailed
		row.ErrorMessage = truncate(runErr.Error(), maxErrorMessageLen)
	}
	if row.Status != bq.RunStatusRunning {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true}
	}

	return row
}

// EnsureRunsTableWithClient creates the ledger table if it does not exist
// yet, using the provided BigQuery client.
func EnsureRunsTableWithClient(ctx context.Context, client *bigquery.Client, dataset, table string) error {
	fq, err := qualifiedTable(client.Project(), dataset, table)
	if err != nil {
		return fmt.Errorf("EnsureRunsTable: %w", err)
	}

	if err := runDML(ctx, client.Query(runsTableDDL(fq))); err != nil {
		return fmt.Errorf("EnsureRunsTable: %w", err)
	}
	return nil
}

func runsTableDDL(fq string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id        STRING NOT NULL,
			input_file    STRING NOT NULL,
			artifact_name STRING,
			started_ts    TIMESTAMP NOT NULL,
			finished_ts   TIMESTAMP,
			status        STRING NOT NULL,
			failed_stage  STRING,
			error_message STRING,
			rows_loaded   INT64,
			rows_rejected INT64,
			rows_skipped  INT64
		)
	`, fq)
}

// StartRunWithClient inserts a new run row with status=RUNNING using the
// provided BigQuery client.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, row *LoadRunRow) error {
	fq, err := qualifiedTable(client.Project(), dataset, table)
	if err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			input_file,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@input_file,
			@started_ts,
			@status
		)
	`, fq))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "input_file", Value: row.InputFile},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// FinishRunWithClient sets the outcome columns of a run using the provided
// BigQuery client.
func FinishRunWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, row *LoadRunRow) error {
	fq, err := qualifiedTable(client.Project(), dataset, table)
	if err != nil {
		return fmt.Errorf("FinishRun: %w", err)
	}

	finished := time.Now()
	if row.FinishedTS.Valid {
		finished = row.FinishedTS.Timestamp
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    artifact_name = @artifact_name,
		    failed_stage = @failed_stage,
		    error_message = @error_message,
		    rows_loaded = @rows_loaded,
		    rows_rejected = @rows_rejected,
		    rows_skipped = @rows_skipped
		WHERE run_id = @run_id
	`, fq))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: row.Status},
		{Name: "finished_ts", Value: finished},
		{Name: "artifact_name", Value: row.ArtifactName},
		{Name: "failed_stage", Value: row.FailedStage},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "rows_loaded", Value: row.RowsLoaded},
		{Name: "rows_rejected", Value: row.RowsRejected},
		{Name: "rows_skipped", Value: row.RowsSkipped},
		{Name: "run_id", Value: row.RunID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishRun: %w", err)
	}
	return nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func qualifiedTable(project, dataset, table string) (string, error) {
	if !config.ValidIdentifier(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	ds, err := qualifiedDataset(project, dataset)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.`%s`", ds, table), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ RunRepository        = (*RunLedger)(nil)
	_ pipeline.RunRecorder = (*RunLedger)(nil)
)
