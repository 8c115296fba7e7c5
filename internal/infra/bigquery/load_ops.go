package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/txn-loader/internal/config"
	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
)

const maxJobIDLength = 1024

// LoadWithClient runs a CSV load job from the staged object into the target
// table using the provided BigQuery client. Artifact columns are matched to
// table fields by name, case-insensitively. If a job with req.JobID already
// exists, the call waits on that job instead of starting another.
func LoadWithClient(ctx context.Context, client *bigquery.Client, req domain.LoadRequest) (domain.LoadResult, error) {
	log := logger.FromContext(ctx)
	target := req.Target

	if !config.ValidIdentifier(target.Table) {
		return domain.LoadResult{}, fmt.Errorf("Load: invalid table name %q", target.Table)
	}

	table := client.DatasetInProject(target.Project, target.Dataset).Table(target.Table)
	md, err := table.Metadata(ctx)
	if err != nil {
		return domain.LoadResult{}, fmt.Errorf("Load: table metadata: %w", err)
	}

	schema, err := matchColumns(req.Columns, md.Schema)
	if err != nil {
		return domain.LoadResult{}, fmt.Errorf("Load: %w", err)
	}

	ref := bigquery.NewGCSReference(req.Ref.URI())
	ref.SourceFormat = bigquery.CSV
	ref.SkipLeadingRows = 1
	ref.MaxBadRecords = req.MaxBadRecords
	ref.Schema = schema

	loader := table.LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateNever
	loader.JobID = SanitizeJobID(req.JobID)
	loader.Location = target.Location

	job, err := loader.Run(ctx)
	if err != nil {
		if !isAlreadyExists(err) || loader.JobID == "" {
			return domain.LoadResult{}, fmt.Errorf("Load: starting job: %w", err)
		}
		log.Info().Str("job_id", loader.JobID).Msg("Load job already exists, re-attaching")
		job, err = client.JobFromIDLocation(ctx, loader.JobID, target.Location)
		if err != nil {
			return domain.LoadResult{}, fmt.Errorf("Load: fetching existing job: %w", err)
		}
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return domain.LoadResult{}, fmt.Errorf("Load: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return domain.LoadResult{}, fmt.Errorf("Load: job error: %w", err)
	}

	return loadResult(job.ID(), status), nil
}

// rowErrorReason is the reason BigQuery reports for each record a load job
// skipped under MaxBadRecords.
const rowErrorReason = "invalid"

// loadResult maps a finished load job onto a LoadResult. Skipped records
// are reported as row-level entries in status.Errors of a job that
// otherwise succeeded.
func loadResult(jobID string, status *bigquery.JobStatus) domain.LoadResult {
	res := domain.LoadResult{JobID: jobID}
	if status == nil {
		return res
	}

	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			res.RowsLoaded = stats.OutputRows
		}
	}
	for _, e := range status.Errors {
		if e != nil && e.Reason == rowErrorReason {
			res.RowsRejected++
		}
	}

	return res
}

// matchColumns builds the source schema for a load, in artifact column
// order, from the destination table schema. Every column must match exactly
// one table field, ignoring case.
func matchColumns(columns []string, table bigquery.Schema) (bigquery.Schema, error) {
	if len(columns) == 0 {
		return nil, errors.New("artifact has no columns")
	}

	byName := make(map[string]*bigquery.FieldSchema, len(table))
	for _, f := range table {
		byName[strings.ToLower(f.Name)] = f
	}

	used := make(map[string]bool, len(columns))
	out := make(bigquery.Schema, 0, len(columns))
	for _, col := range columns {
		key := strings.ToLower(strings.TrimSpace(col))
		f, ok := byName[key]
		if !ok {
			return nil, fmt.Errorf("artifact column %q has no matching table field", col)
		}
		if used[key] {
			return nil, fmt.Errorf("artifact column %q matches table field %q more than once", col, f.Name)
		}
		used[key] = true

		field := *f
		out = append(out, &field)
	}

	return out, nil
}

// SanitizeJobID maps id onto the characters BigQuery accepts in job IDs.
func SanitizeJobID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxJobIDLength {
			break
		}
	}
	return b.String()
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
