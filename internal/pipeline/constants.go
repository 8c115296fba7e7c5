package pipeline

const (
	// ArtifactPrefix starts every canonical artifact file name.
	ArtifactPrefix = "processed_transaction"

	// DefaultMaxBadRecords lets the load job skip malformed rows instead of
	// aborting, up to this many.
	DefaultMaxBadRecords = 1_000_000

	// headerReadBytes is how much of a staged artifact is read to find its
	// header line.
	headerReadBytes = 64 * 1024

	// tempPattern names in-progress artifacts in the output directory.
	tempPattern = ".processed_transaction-*.tmp"
)
