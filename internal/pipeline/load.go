package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/retry"
)

// BulkLoader ingests a staged artifact into the destination table.
type BulkLoader struct {
	Warehouse     Loader
	Storage       StorageService
	MaxBadRecords int64
}

// Load appends the staged artifact to the target table. Malformed rows are
// skipped by the warehouse up to MaxBadRecords. Loading the same file twice
// appends twice.
func (b *BulkLoader) Load(ctx context.Context, target domain.LoadTarget, ref domain.StageReference, jobID string) (domain.LoadResult, error) {
	log := logger.FromContext(ctx)

	columns, err := b.stagedHeader(ctx, ref)
	if err != nil {
		return domain.LoadResult{}, &LoadError{
			Table:     target.Table,
			JobID:     jobID,
			Err:       err,
			retryable: retry.IsTransient(err),
		}
	}

	maxBad := b.MaxBadRecords
	if maxBad <= 0 {
		maxBad = DefaultMaxBadRecords
	}

	res, err := b.Warehouse.Load(ctx, domain.LoadRequest{
		Target:        target,
		Ref:           ref,
		Columns:       columns,
		MaxBadRecords: maxBad,
		JobID:         jobID,
	})
	if err != nil {
		return domain.LoadResult{}, &LoadError{
			Table:     target.Table,
			JobID:     jobID,
			Err:       err,
			retryable: retry.IsTransient(err),
		}
	}

	log.Info().
		Str("table", target.Table).
		Str("job_id", res.JobID).
		Int64("rows_loaded", res.RowsLoaded).
		Int64("rows_rejected", res.RowsRejected).
		Msg("Load job finished")

	return res, nil
}

// stagedHeader reads the header line of the staged artifact.
func (b *BulkLoader) stagedHeader(ctx context.Context, ref domain.StageReference) ([]string, error) {
	if b.Storage == nil {
		return domain.CanonicalColumns, nil
	}

	head, err := b.Storage.ReadObjectHead(ctx, ref.Bucket, ref.Key, headerReadBytes)
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", ref.URI(), err)
	}
	return ParseHeader(head)
}

// ParseHeader extracts the column names from the first line of a CSV
// document. A leading byte order mark is ignored.
func ParseHeader(head []byte) ([]string, error) {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i+1]
	}

	r := csv.NewReader(transform.NewReader(bytes.NewReader(head), unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cols, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols, nil
}
