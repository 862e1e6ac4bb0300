package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/internal/store"
	"github.com/askiada/stelp/pkg/pipeline/drawer"
	"github.com/askiada/stelp/pkg/pipeline/measure"
	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Pipeline drives records from sources through the stage sequence into
// the writer. It owns the global store, the counters and the final
// exit code.
type Pipeline struct {
	stages []Stage
	begin  Stage
	end    Stage

	writer  Writer
	globals *store.Store
	plan    *plan
	measure measure.Measure
	metrics map[string]*measure.Metric
	logger  *slog.Logger
	stderr  io.Writer

	strategy          ErrorStrategy
	debug             bool
	exitMessageStderr bool

	stats    Stats
	exitCode int
	exited   bool
	sealed   bool
}

// New creates a pipeline writing to writer.
func New(writer Writer, opts ...Option) (*Pipeline, error) {
	if writer == nil {
		return nil, ErrWriterMustBeSet
	}
	pl, err := newPlan()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create stage plan")
	}
	p := &Pipeline{
		writer:  writer,
		globals: store.New(),
		plan:    pl,
		metrics: make(map[string]*measure.Metric),
		logger:  slog.Default(),
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AddStage appends a stage to the sequence. Stage names must be unique.
func (p *Pipeline) AddStage(stage Stage) error {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	if stage == nil {
		return ErrStageMustBeSet
	}
	if err := p.plan.addStage(stage.Name()); err != nil {
		return err
	}
	p.stages = append(p.stages, stage)
	if p.measure != nil {
		p.metrics[stage.Name()] = p.measure.AddStage(stage.Name())
	}
	return nil
}

// Globals returns the run-wide variable store.
func (p *Pipeline) Globals() *store.Store { return p.globals }

// Stats returns the accumulated run counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// Measure returns the stage timing collector, nil unless WithMeasure
// was set.
func (p *Pipeline) Measure() measure.Measure { return p.measure }

// ExitCode computes the process exit code: a user exit code verbatim;
// otherwise 2 when nothing was written, 1 when errors were absorbed,
// else 0.
func (p *Pipeline) ExitCode() int {
	switch {
	case p.exited:
		return p.exitCode
	case p.stats.RecordsWritten == 0:
		return 2
	case p.stats.Errors > 0:
		return 1
	default:
		return 0
	}
}

// DrawPlan renders the declared stage sequence to fileName as DOT,
// colored by stage timing when measuring is enabled.
func (p *Pipeline) DrawPlan(fileName string) error {
	names, err := p.plan.stageNames()
	if err != nil {
		return err
	}
	d := drawer.New(fileName)
	chain := append(append([]string{planSourceVertex}, names...), planSinkVertex)
	for _, name := range chain {
		if err := d.AddStage(name); err != nil {
			return err
		}
	}
	for i := 1; i < len(chain); i++ {
		if err := d.AddLink(chain[i-1], chain[i]); err != nil {
			return err
		}
	}
	if p.measure != nil {
		if err := d.AddMeasure(p.measure); err != nil {
			return err
		}
	}
	return d.Draw()
}

// Run processes every source in order. It returns an error only for
// fatal conditions: I/O failure, cancellation, or the first stage
// error under FailFast.
func (p *Pipeline) Run(ctx context.Context, sources ...Source) (err error) {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	start := time.Now()
	defer func() {
		p.stats.Elapsed = time.Since(start)
		if p.measure != nil {
			p.measure.SetTotalDuration(p.stats.Elapsed)
		}
		if err != nil {
			// Records accepted before the fatal error stay written:
			// drain the sink's buffer before surfacing it.
			if flushErr := p.writer.Flush(); flushErr != nil && !IsBrokenPipe(flushErr) {
				p.logger.Warn("unable to flush output", "err", flushErr.Error())
			}
		}
	}()
	if !p.sealed {
		if err := p.plan.seal(); err != nil {
			return err
		}
		p.sealed = true
	}

	if p.begin != nil {
		stop, err := p.runBoundary(p.begin, &model.Context{Globals: p.globals, Debug: p.debug})
		if err != nil {
			return err
		}
		if stop {
			return p.finish()
		}
	}

	for _, src := range sources {
		stop, err := p.runSource(ctx, src)
		if err != nil {
			return err
		}
		if stop {
			return p.finish()
		}
	}

	if p.end != nil {
		if _, err := p.runBoundary(p.end, &model.Context{Globals: p.globals, Debug: p.debug}); err != nil {
			return err
		}
	}
	return p.finish()
}

func (p *Pipeline) runSource(ctx context.Context, src Source) (stop bool, err error) {
	for _, stage := range p.stages {
		stage.Reset()
	}
	lineNumber, recordNumber := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return false, errors.Wrap(err, "run cancelled")
		}
		rec, consumed, err := src.Decoder.Next()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		lineNumber += consumed
		if err != nil {
			stageErr, ok := AsStageError(err)
			if !ok {
				// Read failures are fatal regardless of strategy.
				return false, err
			}
			if stageErr.Line == 0 {
				stageErr.Line = lineNumber
			}
			if stop, err := p.absorb(stageErr); stop || err != nil {
				return stop, err
			}
			continue
		}
		recordNumber++
		p.stats.RecordsRead++

		if rec.IsText() {
			if content, textErr := rec.Text(); textErr == nil && strings.TrimSpace(content) == "" {
				p.stats.RecordsSkipped++
				continue
			}
		}

		rctx := &model.Context{
			Filename:     src.Name,
			LineNumber:   lineNumber,
			RecordNumber: recordNumber,
			Globals:      p.globals,
			Debug:        p.debug,
		}
		stop, err := p.runStagesFrom(rec, rctx, 0)
		if err != nil {
			return false, err
		}
		if stop {
			return true, nil
		}
	}
}

// runStagesFrom walks the stage sequence starting at index from. It
// writes emits as they appear and the surviving record at the end.
// Fan-out records re-enter at the next stage, in list order.
func (p *Pipeline) runStagesFrom(rec *model.Record, rctx *model.Context, from int) (stop bool, err error) {
	current := rec
	for i := from; i < len(p.stages); i++ {
		stage := p.stages[i]
		started := time.Now()
		outcome := stage.Process(current, rctx)
		if mt := p.metrics[stage.Name()]; mt != nil {
			mt.Add(time.Since(started))
		}
		if stop, err := p.writeEmits(outcome.Emits); stop || err != nil {
			return stop, err
		}

		switch outcome.Kind {
		case model.OutcomeContinue:
			current = outcome.Record
		case model.OutcomeDrop:
			p.stats.RecordsSkipped++
			return false, nil
		case model.OutcomeError:
			stageErr, ok := AsStageError(outcome.Err)
			if !ok {
				stageErr = NewScriptError(stage.Name(), rctx.LineNumber, outcome.Err)
			}
			return p.absorb(stageErr)
		case model.OutcomeExit:
			return true, p.handleExit(outcome)
		case model.OutcomeFanOut:
			for _, sub := range outcome.Records {
				stop, err := p.runStagesFrom(sub, rctx, i+1)
				if stop || err != nil {
					return stop, err
				}
			}
			return false, nil
		}
	}
	return p.writeRecord(current)
}

func (p *Pipeline) runBoundary(stage Stage, rctx *model.Context) (stop bool, err error) {
	outcome := stage.Process(model.NewText(""), rctx)
	if stop, err := p.writeEmits(outcome.Emits); stop || err != nil {
		return stop, err
	}
	switch outcome.Kind {
	case model.OutcomeContinue:
		return p.writeRecord(outcome.Record)
	case model.OutcomeFanOut:
		for _, sub := range outcome.Records {
			if stop, err := p.writeRecord(sub); stop || err != nil {
				return stop, err
			}
		}
	case model.OutcomeExit:
		return true, p.handleExit(outcome)
	case model.OutcomeError:
		stageErr, ok := AsStageError(outcome.Err)
		if !ok {
			stageErr = NewScriptError(stage.Name(), 0, outcome.Err)
		}
		return p.absorb(stageErr)
	case model.OutcomeDrop:
	}
	return false, nil
}

func (p *Pipeline) writeRecord(rec *model.Record) (stop bool, err error) {
	if err := p.writer.Write(rec); err != nil {
		if IsBrokenPipe(err) {
			p.markBrokenPipe()
			return true, nil
		}
		return false, errors.Wrap(err, "unable to write record")
	}
	p.stats.RecordsWritten++
	return false, nil
}

func (p *Pipeline) writeEmits(emits []string) (stop bool, err error) {
	for _, line := range emits {
		if err := p.writer.WriteRaw(line); err != nil {
			if IsBrokenPipe(err) {
				p.markBrokenPipe()
				return true, nil
			}
			return false, errors.Wrap(err, "unable to write emit")
		}
		p.stats.RecordsWritten++
	}
	return false, nil
}

// absorb applies the error strategy to a per-record failure.
func (p *Pipeline) absorb(stageErr *StageError) (stop bool, err error) {
	if p.strategy == FailFast {
		return false, stageErr
	}
	p.stats.Errors++
	if p.debug {
		p.logger.Warn("record dropped",
			"stage", stageErr.Stage,
			"line", stageErr.Line,
			"kind", stageErr.Kind.String(),
			"err", stageErr.Err.Error(),
		)
	}
	return false, nil
}

func (p *Pipeline) handleExit(outcome model.Outcome) error {
	p.exited = true
	p.exitCode = outcome.Code
	if outcome.Message == "" {
		return nil
	}
	if p.exitMessageStderr {
		fmt.Fprintln(p.stderr, outcome.Message)
		return nil
	}
	if err := p.writer.WriteRaw(outcome.Message); err != nil && !IsBrokenPipe(err) {
		return errors.Wrap(err, "unable to write exit message")
	}
	return nil
}

func (p *Pipeline) markBrokenPipe() {
	// Downstream closed the sink: stop quietly and report success.
	p.exited = true
	p.exitCode = 0
}

func (p *Pipeline) finish() error {
	if err := p.writer.Flush(); err != nil {
		if IsBrokenPipe(err) {
			p.markBrokenPipe()
			return nil
		}
		return errors.Wrap(err, "unable to flush output")
	}
	return nil
}
