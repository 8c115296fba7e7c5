package pipeline

import (
	"fmt"
	"strings"
)

// RowError is a row-level failure. It is counted and logged, never fatal.
type RowError struct {
	Line   int // 1-based input line, 0 when unknown
	Field  string
	Value  string
	Reason string
}

func (e *RowError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field %q: ", e.Field)
	}
	b.WriteString(e.Reason)
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	return b.String()
}

// IOError is a failure to read the input or write the artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error   { return e.Err }
func (e *IOError) Retryable() bool { return false }

// TransportError is a failed interaction with the object store.
type TransportError struct {
	Bucket    string
	Key       string
	Err       error
	retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload gs://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return e.retryable }

// Verification checks, in the order they run.
const (
	CheckTable = "table"
	CheckStage = "stage"
	CheckFile  = "file"
)

// VerificationError is a failed pre-load check. Err is nil when the object
// was simply absent.
type VerificationError struct {
	Check   string
	Project string
	Dataset string
	Table   string
	Stage   string
	File    string
	Err     error

	retryable bool
}

func (e *VerificationError) Error() string {
	var subject string
	switch e.Check {
	case CheckTable:
		subject = fmt.Sprintf("table %s.%s.%s", e.Project, e.Dataset, e.Table)
	case CheckStage:
		subject = fmt.Sprintf("stage %s.%s.%s", e.Project, e.Dataset, e.Stage)
	case CheckFile:
		subject = fmt.Sprintf("file %s in stage %s", e.File, e.Stage)
	default:
		subject = e.Check
	}
	if e.Err != nil {
		return fmt.Sprintf("verify %s: %v", subject, e.Err)
	}
	return fmt.Sprintf("verify %s: not found", subject)
}

func (e *VerificationError) Unwrap() error   { return e.Err }
func (e *VerificationError) Retryable() bool { return e.retryable }

// LoadError is a failed bulk load.
type LoadError struct {
	Table     string
	JobID     string
	Err       error
	retryable bool
}

func (e *LoadError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("load into %s (job %s): %v", e.Table, e.JobID, e.Err)
	}
	return fmt.Sprintf("load into %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error   { return e.Err }
func (e *LoadError) Retryable() bool { return e.retryable }

// StageError is the FAILED(stage, cause) outcome of a run.
type StageError struct {
	Step StepName
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Step, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
