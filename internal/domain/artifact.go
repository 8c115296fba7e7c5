package domain

import (
	"fmt"
	"path"
	"time"
)

// RowFailure records one raw record that was dropped during processing.
type RowFailure struct {
	Line   int    // 1-based line of the record in the input file (header is line 1)
	Reason string // human-readable cause
}

// BatchArtifact is the canonical file produced from one input file.
type BatchArtifact struct {
	Name      string // file name, also the object name suffix in storage
	Path      string // local path of the written file
	Rows      int    // canonical records written
	Skipped   int    // raw records dropped
	CreatedAt time.Time
	Checksum  string // xxh3-64 of the file contents, hex

	Failures []RowFailure
}

// Total is the number of raw records read from the input.
func (a *BatchArtifact) Total() int {
	return a.Rows + a.Skipped
}

// Destination is where canonical artifacts are published.
type Destination struct {
	Bucket string
	Prefix string // logical namespace, e.g. "transactions"
}

// ObjectKey returns the deterministic object key for a file name.
func (d Destination) ObjectKey(fileName string) string {
	if d.Prefix == "" {
		return fileName
	}
	return path.Join(d.Prefix, fileName)
}

// StageReference points at one uploaded artifact. It is created on a
// successful upload and never mutated.
type StageReference struct {
	Bucket string
	Key    string
}

// URI returns the gs:// form of the reference.
func (r StageReference) URI() string {
	return fmt.Sprintf("gs://%s/%s", r.Bucket, r.Key)
}

// FileName returns the base name of the object key.
func (r StageReference) FileName() string {
	return path.Base(r.Key)
}
