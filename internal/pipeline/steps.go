package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/retry"
	"github.com/dvloznov/txn-loader/internal/runlog"
)

// StepName identifies a pipeline step in events and failures.
type StepName string

const (
	StepTransform StepName = "transform"
	StepUpload    StepName = "upload"
	StepVerify    StepName = "verify"
	StepLoad      StepName = "load"
)

// Stage is the lifecycle position of a run.
type Stage string

const (
	StageConfigLoaded Stage = "CONFIG_LOADED"
	StageTransformed  Stage = "TRANSFORMED"
	StageUploaded     Stage = "UPLOADED"
	StageVerified     Stage = "VERIFIED"
	StageLoaded       Stage = "LOADED"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// ErrRowCountMismatch is wrapped by a LoadError when strict reconciliation
// is enabled and the loaded row count differs from the artifact.
var ErrRowCountMismatch = errors.New("loaded row count does not match artifact")

// PipelineStep represents a single step in the load pipeline.
type PipelineStep interface {
	Name() StepName
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps. It is
// owned by one run.
type PipelineState struct {
	RunID     string
	InputPath string
	OutputDir string
	StartedAt time.Time

	Artifact *domain.BatchArtifact
	Ref      *domain.StageReference
	Result   *domain.LoadResult

	Stage      Stage
	FailedStep StepName

	// Warehouse is set by the verify step and closed when the run ends.
	Warehouse Warehouse

	events  runlog.Sink
	closers []io.Closer
}

// NewRunState prepares the state for a run over inputPath. A run ID is
// generated when runID is empty.
func NewRunState(runID, inputPath, outputDir string) *PipelineState {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &PipelineState{
		RunID:     runID,
		InputPath: inputPath,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Stage:     StageConfigLoaded,
	}
}

// AddCloser registers a resource to release when the run ends.
func (s *PipelineState) AddCloser(c io.Closer) {
	s.closers = append(s.closers, c)
}

func (s *PipelineState) emit(ctx context.Context, step StepName, status runlog.Status, msg string, fields map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, runlog.Event{
		Time:    time.Now(),
		RunID:   s.RunID,
		Step:    string(step),
		Status:  status,
		Message: msg,
		Fields:  fields,
	})
}

// TransformStep converts the input file into a canonical artifact.
type TransformStep struct {
	Processor *Processor
}

func (s *TransformStep) Name() StepName { return StepTransform }

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	artifact, err := s.Processor.Process(ctx, state.InputPath, state.OutputDir)
	if err != nil {
		return err
	}
	state.Artifact = artifact
	state.Stage = StageTransformed

	state.emit(ctx, StepTransform, runlog.StatusInfo, "Artifact written", map[string]interface{}{
		"artifact": artifact.Name,
		"rows":     artifact.Rows,
		"skipped":  artifact.Skipped,
	})
	return nil
}

// UploadStep publishes the artifact to the object store.
type UploadStep struct {
	Uploader    *Uploader
	Destination domain.Destination
	Retry       retry.Policy
}

func (s *UploadStep) Name() StepName { return StepUpload }

func (s *UploadStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Artifact == nil {
		return errors.New("no artifact to upload")
	}

	var ref domain.StageReference
	err := retry.Do(ctx, s.Retry, string(StepUpload), func(ctx context.Context) error {
		var err error
		ref, err = s.Uploader.Upload(ctx, state.Artifact, s.Destination)
		return err
	})
	if err != nil {
		return err
	}

	state.Ref = &ref
	state.Stage = StageUploaded
	return nil
}

// VerifyStep opens the warehouse and checks the load preconditions.
type VerifyStep struct {
	Open   WarehouseOpener
	Target domain.LoadTarget
	Retry  retry.Policy
}

func (s *VerifyStep) Name() StepName { return StepVerify }

func (s *VerifyStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Ref == nil {
		return errors.New("no staged file to verify")
	}

	if state.Warehouse == nil {
		wh, err := s.Open(ctx)
		if err != nil {
			return fmt.Errorf("opening warehouse: %w", err)
		}
		state.Warehouse = wh
		state.AddCloser(wh)
	}

	v := &Verifier{Catalog: state.Warehouse}
	err := retry.Do(ctx, s.Retry, string(StepVerify), func(ctx context.Context) error {
		return v.Verify(ctx, s.Target, *state.Ref)
	})
	if err != nil {
		return err
	}

	state.Stage = StageVerified
	return nil
}

// LoadStep bulk-loads the staged artifact and reconciles row counts.
type LoadStep struct {
	Target          domain.LoadTarget
	Storage         StorageService
	MaxBadRecords   int64
	Retry           retry.Policy
	StrictReconcile bool
}

func (s *LoadStep) Name() StepName { return StepLoad }

func (s *LoadStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Ref == nil || state.Warehouse == nil {
		return errors.New("load requires a verified staged file")
	}

	loader := &BulkLoader{
		Warehouse:     state.Warehouse,
		Storage:       s.Storage,
		MaxBadRecords: s.MaxBadRecords,
	}
	jobID := LoadJobID(state.RunID)

	var res domain.LoadResult
	err := retry.Do(ctx, s.Retry, string(StepLoad), func(ctx context.Context) error {
		var err error
		res, err = loader.Load(ctx, s.Target, *state.Ref, jobID)
		return err
	})
	if err != nil {
		return err
	}
	state.Result = &res

	if err := s.reconcile(ctx, state); err != nil {
		return err
	}

	state.Stage = StageLoaded
	return nil
}

func (s *LoadStep) reconcile(ctx context.Context, state *PipelineState) error {
	if state.Artifact == nil {
		return nil
	}
	want := int64(state.Artifact.Rows)
	if state.Result.RowsLoaded == want {
		return nil
	}

	fields := map[string]interface{}{
		"rows_expected": want,
		"rows_loaded":   state.Result.RowsLoaded,
		"rows_rejected": state.Result.RowsRejected,
	}
	if s.StrictReconcile {
		return &LoadError{
			Table: s.Target.Table,
			JobID: state.Result.JobID,
			Err:   fmt.Errorf("%w: expected %d, loaded %d", ErrRowCountMismatch, want, state.Result.RowsLoaded),
		}
	}
	state.emit(ctx, StepLoad, runlog.StatusWarning, "Loaded row count differs from artifact", fields)
	return nil
}

// LoadJobID derives the load job ID for a run. Retries within the run reuse
// it; a later run gets a different one.
func LoadJobID(runID string) string {
	return "txload_" + strings.ReplaceAll(runID, "-", "_")
}
