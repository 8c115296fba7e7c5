package pipeline

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// NamingStrategy decides how artifact file names are made unique.
type NamingStrategy string

const (
	// NamingDate produces one name per calendar day. Two runs on the same
	// day overwrite each other's artifact.
	NamingDate NamingStrategy = "date"

	// NamingContent appends the content hash, so identical input on the
	// same day keeps its name and different input never collides.
	NamingContent NamingStrategy = "content"

	// NamingRun appends a prefix of the run ID.
	NamingRun NamingStrategy = "run"
)

// ParseNamingStrategy returns the strategy for s, defaulting to NamingContent.
func ParseNamingStrategy(s string) (NamingStrategy, error) {
	switch NamingStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NamingContent:
		return NamingContent, nil
	case NamingDate:
		return NamingDate, nil
	case NamingRun:
		return NamingRun, nil
	}
	return "", fmt.Errorf("unknown naming strategy %q", s)
}

// ArtifactName builds the artifact file name for a run on the given day.
// checksum is the hex content hash and runID the run's UUID; each is only
// consulted by the strategy that needs it.
func ArtifactName(strategy NamingStrategy, day civil.Date, checksum, runID string) string {
	stamp := fmt.Sprintf("%04d%02d%02d", day.Year, int(day.Month), day.Day)

	switch strategy {
	case NamingDate:
		return fmt.Sprintf("%s_%s.csv", ArtifactPrefix, stamp)
	case NamingRun:
		short := strings.ReplaceAll(runID, "-", "")
		if len(short) > 8 {
			short = short[:8]
		}
		return fmt.Sprintf("%s_%s_%s.csv", ArtifactPrefix, stamp, short)
	default:
		return fmt.Sprintf("%s_%s_%s.csv", ArtifactPrefix, stamp, checksum)
	}
}
