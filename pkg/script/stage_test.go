package script_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/stelp/internal/store"
	"github.com/askiada/stelp/pkg/pipeline/model"
	"github.com/askiada/stelp/pkg/script"
)

func newTestRuntime(t *testing.T, opts ...script.RuntimeOption) (*script.Runtime, *store.Store) {
	t.Helper()
	globals := store.New()
	opts = append(opts, script.WithStderr(&bytes.Buffer{}))
	return script.NewRuntime(globals, opts...), globals
}

func recordContext(globals *store.Store) *model.Context {
	return &model.Context{Filename: "in.log", LineNumber: 1, RecordNumber: 1, Globals: globals}
}

func TestTransformExpression(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `line.upper()`, rt)
	require.NoError(t, err)

	rec := model.NewText("abc")
	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	content, err := out.Record.Text()
	require.NoError(t, err)
	assert.Equal(t, "ABC", content)
}

func TestTransformNoneDrops(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `None`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("abc"), recordContext(globals))
	assert.Equal(t, model.OutcomeDrop, out.Kind)
}

func TestTransformDictBecomesStructured(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `{"msg": line, "len": len(line)}`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("abc"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	fields, err := out.Record.Structured()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg", "len"}, fields.Keys())
	msg, _ := fields.Get("msg")
	assert.Equal(t, "abc", msg)
	length, _ := fields.Get("len")
	assert.Equal(t, int64(3), length)
}

func TestTransformListFansOut(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `[line, line + "!"]`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("a"), recordContext(globals))
	require.Equal(t, model.OutcomeFanOut, out.Kind)
	require.Len(t, out.Records, 2)
	first, _ := out.Records[0].Text()
	second, _ := out.Records[1].Text()
	assert.Equal(t, "a", first)
	assert.Equal(t, "a!", second)
}

func TestTransformEmptyListDrops(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `[]`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("a"), recordContext(globals))
	assert.Equal(t, model.OutcomeDrop, out.Kind)
}

func TestTransformStatementsUseResult(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	src := `
prefix = "out: "
result = prefix + line
`
	stage, err := script.NewTransform("eval_1", src, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("abc"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	content, _ := out.Record.Text()
	assert.Equal(t, "out: abc", content)
}

func TestTransformRuntimeError(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `int(line)`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("not a number"), recordContext(globals))
	require.Equal(t, model.OutcomeError, out.Kind)
	assert.Error(t, out.Err)
}

func TestFilterTruthiness(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewFilter("filter_1", `"error" in line`, rt)
	require.NoError(t, err)

	keep := stage.Process(model.NewText("an error happened"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, keep.Kind)
	content, _ := keep.Record.Text()
	assert.Equal(t, "an error happened", content)

	drop := stage.Process(model.NewText("all fine"), recordContext(globals))
	assert.Equal(t, model.OutcomeDrop, drop.Kind)
}

func TestFilterRejectsStatements(t *testing.T) {
	t.Parallel()

	rt, _ := newTestRuntime(t)
	_, err := script.NewFilter("filter_1", `x = 1`, rt)
	assert.Error(t, err)
}

func TestFilterCannotMutateRecord(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewFilter("filter_1", `data.pop("a") == "v"`, rt)
	require.NoError(t, err)

	fields := model.NewFields()
	fields.Set("a", "v")
	fields.Set("b", "w")
	rec := model.NewStructured(fields)

	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)

	got, err := out.Record.Structured()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Keys())
}

func TestDeriveWritesFieldsBack(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewDerive("derive_1", `double = n * 2`, rt)
	require.NoError(t, err)

	fields := model.NewFields()
	fields.Set("n", int64(21))
	rec := model.NewStructured(fields)

	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	got, _ := fields.Get("double")
	assert.Equal(t, int64(42), got)
}

func TestDeriveNoneDeletesField(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewDerive("derive_1", `secret = None`, rt)
	require.NoError(t, err)

	fields := model.NewFields()
	fields.Set("secret", "hunter2")
	fields.Set("user", "root")
	rec := model.NewStructured(fields)

	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	_, ok := fields.Get("secret")
	assert.False(t, ok)
	assert.Equal(t, []string{"user"}, fields.Keys())
}

func TestDeriveSkipsUnderscoreAndHelpers(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	src := `
def _scale(x):
    return x * 10

_tmp = _scale(2)
scaled = _tmp
`
	stage, err := script.NewDerive("derive_1", src, rt)
	require.NoError(t, err)

	fields := model.NewFields()
	rec := model.NewStructured(fields)
	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)

	_, hasTmp := fields.Get("_tmp")
	assert.False(t, hasTmp)
	scaled, ok := fields.Get("scaled")
	require.True(t, ok)
	assert.Equal(t, int64(20), scaled)
}

func TestDeriveOnTextRecordCreatesFields(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewDerive("derive_1", `length = len(line)`, rt)
	require.NoError(t, err)

	rec := model.NewText("hello")
	out := stage.Process(rec, recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	require.True(t, out.Record.IsStructured())
	fields, _ := out.Record.Structured()
	length, _ := fields.Get("length")
	assert.Equal(t, int64(5), length)
}

func TestSkipBuiltinDrops(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `skip() if "noise" in line else line`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("noise here"), recordContext(globals))
	assert.Equal(t, model.OutcomeDrop, out.Kind)

	kept := stage.Process(model.NewText("signal"), recordContext(globals))
	assert.Equal(t, model.OutcomeContinue, kept.Kind)
}

func TestEmitBuiltinAttachesLines(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `emit("side " + line) or line`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("a"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	assert.Equal(t, []string{"side a"}, out.Emits)
}

func TestExitBuiltinTerminates(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `exit(3, "done")`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("a"), recordContext(globals))
	require.Equal(t, model.OutcomeExit, out.Kind)
	assert.Equal(t, 3, out.Code)
	assert.Equal(t, "done", out.Message)
}

func TestGlobalsRoundTrip(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	src := `
glob["seen"] = inc("counter")
result = line
`
	stage, err := script.NewTransform("eval_1", src, rt)
	require.NoError(t, err)

	rctx := recordContext(globals)
	out := stage.Process(model.NewText("a"), rctx)
	require.Equal(t, model.OutcomeContinue, out.Kind)
	out = stage.Process(model.NewText("b"), rctx)
	require.Equal(t, model.OutcomeContinue, out.Kind)

	seen, ok := globals.Get("seen")
	require.True(t, ok)
	assert.Equal(t, int64(2), seen)
	counter, _ := globals.Get("counter")
	assert.Equal(t, int64(2), counter)
}

func TestGlobalAccessorBuiltins(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	src := `
set_global("tag", get_global("tag", "none") + "+" + line)
result = line
`
	stage, err := script.NewTransform("eval_1", src, rt)
	require.NoError(t, err)

	rctx := recordContext(globals)
	out := stage.Process(model.NewText("a"), rctx)
	require.Equal(t, model.OutcomeContinue, out.Kind)
	out = stage.Process(model.NewText("b"), rctx)
	require.Equal(t, model.OutcomeContinue, out.Kind)

	tag, ok := globals.Get("tag")
	require.True(t, ok)
	assert.Equal(t, "none+a+b", tag)
}

func TestMetaBindings(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	stage, err := script.NewTransform("eval_1", `meta.filename + ":" + str(meta.line_number)`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("a"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	content, _ := out.Record.Text()
	assert.Equal(t, "in.log:1", content)
}

func TestIncludeDefinitionsAreShared(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t)
	require.NoError(t, rt.LoadInclude("helpers.star", "def shout(s):\n    return s.upper()\n"))

	stage, err := script.NewTransform("eval_1", `shout(line)`, rt)
	require.NoError(t, err)

	out := stage.Process(model.NewText("quiet"), recordContext(globals))
	require.Equal(t, model.OutcomeContinue, out.Kind)
	content, _ := out.Record.Text()
	assert.Equal(t, "QUIET", content)
}

func TestWindowTracksRecentRecords(t *testing.T) {
	t.Parallel()

	rt, globals := newTestRuntime(t, script.WithWindow(2))
	capture := script.NewWindowStage("window", rt)
	stage, err := script.NewTransform("eval_1", `str(len(window))`, rt)
	require.NoError(t, err)

	rctx := recordContext(globals)
	for _, line := range []string{"a", "b", "c"} {
		out := capture.Process(model.NewText(line), rctx)
		require.Equal(t, model.OutcomeContinue, out.Kind)
	}

	out := stage.Process(model.NewText("d"), rctx)
	require.Equal(t, model.OutcomeContinue, out.Kind)
	content, _ := out.Record.Text()
	assert.Equal(t, "2", content)

	capture.Reset()
	out = stage.Process(model.NewText("e"), rctx)
	content, _ = out.Record.Text()
	assert.Equal(t, "0", content)
}
