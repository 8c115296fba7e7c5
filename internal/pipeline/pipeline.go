package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/retry"
	"github.com/dvloznov/txn-loader/internal/runlog"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps    []PipelineStep
	events   runlog.Sink
	recorder RunRecorder
}

// NewPipeline creates a new pipeline with the given steps. Events go to
// events; a nil sink discards them.
func NewPipeline(events runlog.Sink, steps ...PipelineStep) *Pipeline {
	if events == nil {
		events = runlog.Discard{}
	}
	return &Pipeline{steps: steps, events: events}
}

// WithRecorder records run outcomes through r. Recorder failures are logged
// and never fail the run.
func (p *Pipeline) WithRecorder(r RunRecorder) *Pipeline {
	p.recorder = r
	return p
}

// Execute runs all steps sequentially. The first failing step stops the run
// with a *StageError; work already done by earlier steps is kept. Resources
// registered on the state are closed before Execute returns.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) (err error) {
	state.events = p.events
	log := logger.FromContext(ctx).With().Str("run_id", state.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	defer func() {
		for i := len(state.closers) - 1; i >= 0; i-- {
			if cerr := state.closers[i].Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("Closing run resource")
			}
		}
		state.closers = nil
	}()

	state.emit(ctx, "", runlog.StatusStarted, "Pipeline started", map[string]interface{}{
		"input": state.InputPath,
	})
	if p.recorder != nil {
		if rerr := p.recorder.RecordStart(ctx, state); rerr != nil {
			log.Warn().Err(rerr).Msg("Recording run start")
		}
	}

	for _, step := range p.steps {
		name := step.Name()
		state.emit(ctx, name, runlog.StatusStarted, "Step started", nil)
		started := time.Now()

		if serr := step.Execute(ctx, state); serr != nil {
			state.Stage = StageFailed
			state.FailedStep = name
			err = &StageError{Step: name, Err: serr}

			p.events.Emit(ctx, runlog.Event{
				Time:    time.Now(),
				RunID:   state.RunID,
				Step:    string(name),
				Status:  runlog.StatusFailed,
				Message: "Step failed",
				Err:     serr,
			})
			p.events.Emit(ctx, runlog.Event{
				Time:    time.Now(),
				RunID:   state.RunID,
				Status:  runlog.StatusFailed,
				Message: err.Error(),
				Err:     serr,
				Fields:  map[string]interface{}{"stage": string(name)},
			})
			p.finish(ctx, state, err)
			return err
		}

		state.emit(ctx, name, runlog.StatusSucceeded, "Step completed", map[string]interface{}{
			"stage":       string(state.Stage),
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}

	state.Stage = StageDone
	state.emit(ctx, "", runlog.StatusSucceeded, "Pipeline completed successfully", nil)
	p.finish(ctx, state, nil)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, state *PipelineState, runErr error) {
	if p.recorder == nil {
		return
	}
	if rerr := p.recorder.RecordFinish(ctx, state, runErr); rerr != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(rerr).Msg("Recording run outcome")
	}
}

// Options wires the full transform, upload, verify and load pipeline.
type Options struct {
	Processor       *Processor
	Storage         StorageService
	Destination     domain.Destination
	Target          domain.LoadTarget
	OpenWarehouse   WarehouseOpener
	MaxBadRecords   int64
	Retry           retry.Policy
	StrictReconcile bool
	Events          runlog.Sink
	Recorder        RunRecorder
}

// NewLoadPipeline creates the standard four-step pipeline.
func NewLoadPipeline(opts Options) *Pipeline {
	p := NewPipeline(opts.Events,
		&TransformStep{Processor: opts.Processor},
		&UploadStep{
			Uploader:    &Uploader{Storage: opts.Storage},
			Destination: opts.Destination,
			Retry:       opts.Retry,
		},
		&VerifyStep{
			Open:   opts.OpenWarehouse,
			Target: opts.Target,
			Retry:  opts.Retry,
		},
		&LoadStep{
			Target:          opts.Target,
			Storage:         opts.Storage,
			MaxBadRecords:   opts.MaxBadRecords,
			Retry:           opts.Retry,
			StrictReconcile: opts.StrictReconcile,
		},
	)
	if opts.Recorder != nil {
		p.WithRecorder(opts.Recorder)
	}
	return p
}

// Run executes the full pipeline for one input file. It returns nil only
// once the artifact has been loaded.
func Run(ctx context.Context, opts Options, inputPath, outputDir string) (*PipelineState, error) {
	runID := ""
	if opts.Processor != nil {
		runID = opts.Processor.RunID
	}
	state := NewRunState(runID, inputPath, outputDir)

	var proc Processor
	if opts.Processor != nil {
		proc = *opts.Processor
	}
	proc.RunID = state.RunID
	opts.Processor = &proc

	err := NewLoadPipeline(opts).Execute(ctx, state)
	return state, err
}
