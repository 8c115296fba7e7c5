package domain

// LoadTarget identifies where an artifact is ingested. It is owned outside
// this system: its existence is verified, never created.
type LoadTarget struct {
	Project  string // warehouse database
	Dataset  string // warehouse schema
	Table    string // destination table
	Stage    string // external table pointing at the artifact bucket
	Location string // job location, the compute context for queries and loads
}

// LoadRequest is one bulk ingestion of a staged artifact.
type LoadRequest struct {
	Target LoadTarget
	Ref    StageReference

	// Columns is the artifact header in file order.
	Columns []string

	// MaxBadRecords is the row-level error tolerance; malformed rows up to
	// this count are skipped instead of failing the job.
	MaxBadRecords int64

	// JobID makes the load job addressable so a retry can re-attach to it.
	JobID string
}

// LoadResult summarises a completed load job.
type LoadResult struct {
	JobID        string
	RowsLoaded   int64
	RowsRejected int64
}
