package pipeline_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/stelp/pkg/format"
	"github.com/askiada/stelp/pkg/pipeline"
	"github.com/askiada/stelp/pkg/pipeline/model"
)

func TestNewRequiresWriter(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(nil)
	assert.ErrorIs(t, err, pipeline.ErrWriterMustBeSet)
}

func TestAddStageRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(passThrough("same")))
	assert.Error(t, p.AddStage(passThrough("same")))
}

func TestRunPassesRecordsThrough(t *testing.T) {
	t.Parallel()

	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(upperStage("upper")))

	src := pipeline.Source{Name: "in.log", Decoder: newSliceDecoder("one", "two")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"ONE", "TWO"}, sink.lines)
	assert.Equal(t, int64(2), p.Stats().RecordsRead)
	assert.Equal(t, int64(2), p.Stats().RecordsWritten)
	assert.Equal(t, 0, p.ExitCode())
}

func TestRunSkipsBlankLines(t *testing.T) {
	t.Parallel()

	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)

	src := pipeline.Source{Decoder: newSliceDecoder("a", "   ", "", "b")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"a", "b"}, sink.lines)
	assert.Equal(t, int64(2), p.Stats().RecordsSkipped)
}

func TestRunContextTracksLinesAndRecords(t *testing.T) {
	t.Parallel()

	var gotLines, gotRecords []int
	probe := &funcStage{name: "probe", fn: func(rec *model.Record, rctx *model.Context) model.Outcome {
		gotLines = append(gotLines, rctx.LineNumber)
		gotRecords = append(gotRecords, rctx.RecordNumber)
		return model.Continue(rec)
	}}
	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(probe))

	src := pipeline.Source{Decoder: newSliceDecoder("a", "", "b")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []int{1, 3}, gotLines)
	assert.Equal(t, []int{1, 3}, gotRecords)
}

func TestEmitsFlushBeforeRecordOutput(t *testing.T) {
	t.Parallel()

	emitting := &funcStage{name: "emit", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		return model.Continue(rec).WithEmits([]string{"side:" + textOf(rec)})
	}}
	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(emitting))

	src := pipeline.Source{Decoder: newSliceDecoder("a", "b")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"side:a", "a", "side:b", "b"}, sink.lines)
	assert.Equal(t, int64(4), p.Stats().RecordsWritten)
}

func TestEmitsFlushEvenWhenRecordDrops(t *testing.T) {
	t.Parallel()

	dropper := &funcStage{name: "drop", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		return model.Drop().WithEmits([]string{"tombstone:" + textOf(rec)})
	}}
	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(dropper))

	src := pipeline.Source{Decoder: newSliceDecoder("x")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"tombstone:x"}, sink.lines)
	assert.Equal(t, int64(1), p.Stats().RecordsSkipped)
}

func TestFanOutReentersAtNextStage(t *testing.T) {
	t.Parallel()

	splitter := &funcStage{name: "split", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		var recs []*model.Record
		for _, part := range strings.Split(textOf(rec), ",") {
			recs = append(recs, model.NewText(part))
		}
		return model.FanOut(recs)
	}}
	seen := 0
	counter := &funcStage{name: "count", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		seen++
		return model.Continue(rec)
	}}

	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(splitter))
	require.NoError(t, p.AddStage(counter))

	src := pipeline.Source{Decoder: newSliceDecoder("a,b,c")}
	require.NoError(t, p.Run(context.Background(), src))

	// Fanned-out records run only the stages after the splitter.
	assert.Equal(t, 3, seen)
	assert.Equal(t, []string{"a", "b", "c"}, sink.lines)
	assert.Equal(t, int64(1), p.Stats().RecordsRead)
	assert.Equal(t, int64(3), p.Stats().RecordsWritten)
}

func TestUserExitCodeWinsVerbatim(t *testing.T) {
	t.Parallel()

	exiting := &funcStage{name: "exit", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Exit(3, "done")
	}}
	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(exiting))

	src := pipeline.Source{Decoder: newSliceDecoder("a", "never")}
	require.NoError(t, p.Run(context.Background(), src))

	// Exit code 3 holds even though no record reached the sink.
	assert.Equal(t, 3, p.ExitCode())
	assert.Equal(t, []string{"done"}, sink.lines)
	assert.Equal(t, int64(1), p.Stats().RecordsRead)
}

func TestExitZeroOverridesEmptyOutput(t *testing.T) {
	t.Parallel()

	exiting := &funcStage{name: "exit", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Exit(0, "")
	}}
	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(exiting))

	src := pipeline.Source{Decoder: newSliceDecoder("a")}
	require.NoError(t, p.Run(context.Background(), src))
	assert.Equal(t, 0, p.ExitCode())
}

func TestExitCodeTwoWhenNothingWritten(t *testing.T) {
	t.Parallel()

	dropper := &funcStage{name: "drop", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Drop()
	}}
	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(dropper))

	src := pipeline.Source{Decoder: newSliceDecoder("a", "b")}
	require.NoError(t, p.Run(context.Background(), src))
	assert.Equal(t, 2, p.ExitCode())
}

func TestEmptyOutputBeatsErrorsForExitCode(t *testing.T) {
	t.Parallel()

	failing := &funcStage{name: "boom", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Fail(assert.AnError)
	}}
	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(failing))

	src := pipeline.Source{Decoder: newSliceDecoder("a")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, int64(1), p.Stats().Errors)
	assert.Equal(t, 2, p.ExitCode())
}

func TestExitCodeOneOnAbsorbedErrors(t *testing.T) {
	t.Parallel()

	flaky := &funcStage{name: "flaky", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		if textOf(rec) == "bad" {
			return model.Fail(assert.AnError)
		}
		return model.Continue(rec)
	}}
	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)
	require.NoError(t, p.AddStage(flaky))

	src := pipeline.Source{Decoder: newSliceDecoder("good", "bad", "fine")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"good", "fine"}, sink.lines)
	assert.Equal(t, int64(1), p.Stats().Errors)
	assert.Equal(t, 1, p.ExitCode())
}

func TestFailFastAbortsOnFirstError(t *testing.T) {
	t.Parallel()

	flaky := &funcStage{name: "flaky", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		if textOf(rec) == "bad" {
			return model.Fail(assert.AnError)
		}
		return model.Continue(rec)
	}}
	sink := newMemWriter()
	p, err := pipeline.New(sink, pipeline.WithErrorStrategy(pipeline.FailFast))
	require.NoError(t, err)
	require.NoError(t, p.AddStage(flaky))

	src := pipeline.Source{Decoder: newSliceDecoder("good", "bad", "never")}
	err = p.Run(context.Background(), src)
	require.Error(t, err)

	stageErr, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, "flaky", stageErr.Stage)
	assert.Equal(t, []string{"good"}, sink.lines)
}

func TestFatalErrorFlushesBufferedOutput(t *testing.T) {
	t.Parallel()

	dec := newSliceDecoder("first", "second")
	dec.errAt = 1
	dec.err = pipeline.NewDecodeError("decode:jsonl", 0, assert.AnError)

	var out bytes.Buffer
	sink := format.NewWriter(&out, format.OutputJSONL, format.NewReconciler(nil, nil, nil))
	p, err := pipeline.New(sink, pipeline.WithErrorStrategy(pipeline.FailFast))
	require.NoError(t, err)

	src := pipeline.Source{Decoder: dec}
	err = p.Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, out.String(), "first")
}

func TestDecodeErrorsFollowStrategy(t *testing.T) {
	t.Parallel()

	dec := newSliceDecoder("a", "b")
	dec.errAt = 1
	dec.err = pipeline.NewDecodeError("decode:jsonl", 0, assert.AnError)

	sink := newMemWriter()
	p, err := pipeline.New(sink)
	require.NoError(t, err)

	src := pipeline.Source{Decoder: dec}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"a"}, sink.lines)
	assert.Equal(t, int64(1), p.Stats().Errors)
	assert.Equal(t, 1, p.ExitCode())
}

func TestBrokenPipeEndsRunCleanly(t *testing.T) {
	t.Parallel()

	sink := brokenPipeWriter(1)
	p, err := pipeline.New(sink)
	require.NoError(t, err)

	src := pipeline.Source{Decoder: newSliceDecoder("a", "b", "c")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"a"}, sink.lines)
	assert.Equal(t, 0, p.ExitCode())
}

func TestBeginAndEndRunOnce(t *testing.T) {
	t.Parallel()

	begin := &funcStage{name: "begin", fn: func(_ *model.Record, rctx *model.Context) model.Outcome {
		rctx.Globals.Set("opened", int64(1))
		return model.Drop()
	}}
	end := &funcStage{name: "end", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Continue(model.NewText("total"))
	}}
	counter := &funcStage{name: "count", fn: func(rec *model.Record, rctx *model.Context) model.Outcome {
		rctx.Globals.Increment("count")
		return model.Continue(rec)
	}}

	sink := newMemWriter()
	p, err := pipeline.New(sink, pipeline.WithBegin(begin), pipeline.WithEnd(end))
	require.NoError(t, err)
	require.NoError(t, p.AddStage(counter))

	src := pipeline.Source{Decoder: newSliceDecoder("a", "b")}
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, []string{"a", "b", "total"}, sink.lines)
	opened, _ := p.Globals().Get("opened")
	assert.Equal(t, int64(1), opened)
}

func TestExitSkipsRemainingSourcesAndEnd(t *testing.T) {
	t.Parallel()

	exiting := &funcStage{name: "exit", fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		if textOf(rec) == "stop" {
			return model.Exit(0, "")
		}
		return model.Continue(rec)
	}}
	end := &funcStage{name: "end", fn: func(_ *model.Record, _ *model.Context) model.Outcome {
		return model.Continue(model.NewText("end"))
	}}

	sink := newMemWriter()
	p, err := pipeline.New(sink, pipeline.WithEnd(end))
	require.NoError(t, err)
	require.NoError(t, p.AddStage(exiting))

	first := pipeline.Source{Name: "one", Decoder: newSliceDecoder("a", "stop")}
	second := pipeline.Source{Name: "two", Decoder: newSliceDecoder("never")}
	require.NoError(t, p.Run(context.Background(), first, second))

	assert.Equal(t, []string{"a"}, sink.lines)
}

func TestStagesResetBetweenSources(t *testing.T) {
	t.Parallel()

	stage := passThrough("noop")
	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)
	require.NoError(t, p.AddStage(stage))

	one := pipeline.Source{Name: "one", Decoder: newSliceDecoder("a")}
	two := pipeline.Source{Name: "two", Decoder: newSliceDecoder("b")}
	require.NoError(t, p.Run(context.Background(), one, two))

	assert.Equal(t, 2, stage.resets)
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := pipeline.New(newMemWriter())
	require.NoError(t, err)

	src := pipeline.Source{Decoder: newSliceDecoder("a")}
	err = p.Run(ctx, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
