package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/txn-loader/internal/config"
	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/gcs"
	"github.com/dvloznov/txn-loader/internal/logger"
)

// INFORMATION_SCHEMA.TABLES table_type values.
const (
	tableTypeBase     = "BASE TABLE"
	tableTypeExternal = "EXTERNAL"
)

// qualifiedDataset returns the backquoted `project.dataset` reference. The
// parts are validated first since identifiers cannot be bound as parameters.
func qualifiedDataset(project, dataset string) (string, error) {
	if !config.ValidProject(project) {
		return "", fmt.Errorf("invalid project id %q", project)
	}
	if !config.ValidIdentifier(dataset) {
		return "", fmt.Errorf("invalid dataset name %q", dataset)
	}
	return fmt.Sprintf("`%s.%s`", project, dataset), nil
}

// lookupTableType returns the table_type of name in the target dataset, or
// "" when the dataset has no such table.
func lookupTableType(ctx context.Context, client *bigquery.Client, target domain.LoadTarget, name string) (string, error) {
	ds, err := qualifiedDataset(target.Project, target.Dataset)
	if err != nil {
		return "", err
	}

	q := client.Query(fmt.Sprintf(`
		SELECT table_type
		FROM %s.INFORMATION_SCHEMA.TABLES
		WHERE table_name = @table_name
		LIMIT 1
	`, ds))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "table_name", Value: name},
	}
	if target.Location != "" {
		q.Location = target.Location
	}

	it, err := q.Read(ctx)
	if err != nil {
		if isNotFound(err) {
			// The dataset itself is missing.
			return "", nil
		}
		return "", fmt.Errorf("query read: %w", err)
	}

	var row struct {
		TableType string `bigquery:"table_type"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("iter next: %w", err)
	}
	return row.TableType, nil
}

// TableExistsWithClient reports whether target.Table is a base table using
// the provided BigQuery client.
func TableExistsWithClient(ctx context.Context, client *bigquery.Client, target domain.LoadTarget) (bool, error) {
	tableType, err := lookupTableType(ctx, client, target, target.Table)
	if err != nil {
		return false, fmt.Errorf("TableExists: %w", err)
	}
	return tableType == tableTypeBase, nil
}

// StageLocationWithClient returns the source URIs of the external table
// target.Stage, or nil when it does not exist, using the provided client.
func StageLocationWithClient(ctx context.Context, client *bigquery.Client, target domain.LoadTarget) ([]string, error) {
	tableType, err := lookupTableType(ctx, client, target, target.Stage)
	if err != nil {
		return nil, fmt.Errorf("StageLocation: %w", err)
	}
	if tableType != tableTypeExternal {
		return nil, nil
	}

	md, err := client.DatasetInProject(target.Project, target.Dataset).Table(target.Stage).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("StageLocation: table metadata: %w", err)
	}
	if md.ExternalDataConfig == nil {
		return nil, nil
	}
	return md.ExternalDataConfig.SourceURIs, nil
}

// ListStageFiles lists the objects the stage URIs cover and returns their
// base names, sorted and de-duplicated.
func ListStageFiles(ctx context.Context, files gcs.ObjectLister, uris []string) ([]string, error) {
	if files == nil {
		return nil, errors.New("ListStageFiles: no object lister configured")
	}

	seen := make(map[string]bool)
	for _, uri := range uris {
		bucket, object, err := gcs.ParseURI(uri)
		if err != nil {
			return nil, fmt.Errorf("ListStageFiles: %w", err)
		}

		names, err := files.ListObjectNames(ctx, bucket, gcs.ListPrefix(object))
		if err != nil {
			return nil, fmt.Errorf("ListStageFiles: %w", err)
		}
		for _, n := range names {
			if strings.HasSuffix(n, "/") {
				continue
			}
			seen[gcs.ExtractFilename(n)] = true
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)

	log := logger.FromContext(ctx)
	log.Debug().Int("count", len(out)).Msg("Listed stage files")
	return out, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
