package script

import (
	"sort"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Sentinel errors raised by the host builtins to unwind evaluation.
// They are absorbed before the outcome is built.
var (
	errSkipSignal = errors.New("skip requested")
	errExitSignal = errors.New("exit requested")
)

// evalResult is the raw outcome of one script evaluation.
type evalResult struct {
	value starlark.Value
	ctrl  *control
}

// runExpr evaluates a compiled expression against env.
func (rt *Runtime) runExpr(name string, expr syntax.Expr, env starlark.StringDict) (evalResult, error) {
	thread := newThread(name, rt.stderr)
	value, err := starlark.EvalExprOptions(rt.opts, thread, expr, env)
	return evalResult{value: value, ctrl: controlOf(thread)}, absorbSignals(err)
}

// runProgram executes a compiled program against env and returns its
// top-level bindings through the result.
func (rt *Runtime) runProgram(name string, prog *starlark.Program, env starlark.StringDict) (starlark.StringDict, evalResult, error) {
	thread := newThread(name, rt.stderr)
	globals, err := prog.Init(thread, env)
	res := evalResult{ctrl: controlOf(thread)}
	if value, ok := globals["result"]; ok {
		res.value = value
	}
	return globals, res, absorbSignals(err)
}

func absorbSignals(err error) error {
	if err == nil || errors.Is(err, errSkipSignal) || errors.Is(err, errExitSignal) {
		return nil
	}
	return err
}

// outcomeFor maps the control flags shared by every stage kind, or
// returns ok=false when the stage result itself decides.
func outcomeFor(ctrl *control) (model.Outcome, bool) {
	switch {
	case ctrl.exited:
		return model.Exit(ctrl.code, ctrl.message).WithEmits(ctrl.emits), true
	case ctrl.skip:
		return model.Drop().WithEmits(ctrl.emits), true
	default:
		return model.Outcome{}, false
	}
}

// Transform evaluates user code whose value replaces the record. A
// string becomes a text record, a dict a structured one, None drops
// the record and a list fans out into independent records. Statement
// scripts assign result; without one the record passes unchanged.
type Transform struct {
	name string
	rt   *Runtime
	expr syntax.Expr
	prog *starlark.Program
}

// NewTransform compiles src once. Expression sources are preferred;
// anything else is compiled as a statement program.
func NewTransform(name, src string, rt *Runtime) (*Transform, error) {
	if expr, err := rt.opts.ParseExpr(name, src, 0); err == nil {
		return &Transform{name: name, rt: rt, expr: expr}, nil
	}
	_, prog, err := starlark.SourceProgramOptions(rt.opts, name, src, anyPredeclared)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to compile transform %q", name)
	}
	return &Transform{name: name, rt: rt, prog: prog}, nil
}

// Name implements pipeline.Stage.
func (s *Transform) Name() string { return s.name }

// Reset implements pipeline.Stage. Transforms hold no per-source state.
func (s *Transform) Reset() {}

// Process implements pipeline.Stage.
func (s *Transform) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	env, err := s.rt.bind(rec, rctx)
	if err != nil {
		return model.Fail(err)
	}
	var res evalResult
	if s.expr != nil {
		res, err = s.rt.runExpr(s.name, s.expr, env)
	} else {
		_, res, err = s.rt.runProgram(s.name, s.prog, env)
	}
	if err != nil {
		return model.Fail(err).WithEmits(res.ctrl.emits)
	}
	if out, done := outcomeFor(res.ctrl); done {
		return out
	}
	out, err := s.mapValue(rec, res.value)
	if err != nil {
		return model.Fail(err).WithEmits(res.ctrl.emits)
	}
	return out.WithEmits(res.ctrl.emits)
}

func (s *Transform) mapValue(rec *model.Record, value starlark.Value) (model.Outcome, error) {
	if value == nil {
		return model.Continue(rec), nil
	}
	switch val := value.(type) {
	case starlark.NoneType:
		return model.Drop(), nil
	case *starlark.List:
		if val.Len() == 0 {
			return model.Drop(), nil
		}
		recs := make([]*model.Record, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			sub, err := recordFromValue(val.Index(i))
			if err != nil {
				return model.Outcome{}, err
			}
			recs = append(recs, sub)
		}
		return model.FanOut(recs), nil
	default:
		next, err := recordFromValue(value)
		if err != nil {
			return model.Outcome{}, err
		}
		if next.IsText() {
			content, _ := next.Text()
			rec.ReplaceText(content)
		} else {
			fields, _ := next.Structured()
			rec.ReplaceStructured(fields)
		}
		return model.Continue(rec), nil
	}
}

// recordFromValue builds a record from a single transform result
// element: strings stay text, dicts become structured, other scalars
// render through their script representation.
func recordFromValue(value starlark.Value) (*model.Record, error) {
	switch val := value.(type) {
	case starlark.String:
		return model.NewText(string(val)), nil
	case *starlark.Dict:
		fields, err := fieldsFromStarlark(val)
		if err != nil {
			return nil, err
		}
		return model.NewStructured(fields), nil
	case starlark.Bool, starlark.Int, starlark.Float:
		return model.NewText(value.String()), nil
	default:
		return nil, errors.Wrapf(model.ErrValueKind, "transform produced %s", value.Type())
	}
}

// Filter evaluates a boolean expression. A true value lets the record
// pass untouched, false drops it.
type Filter struct {
	name string
	rt   *Runtime
	expr syntax.Expr
}

// NewFilter compiles the expression once. Filters must be a single
// expression.
func NewFilter(name, src string, rt *Runtime) (*Filter, error) {
	expr, err := rt.opts.ParseExpr(name, src, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to compile filter %q", name)
	}
	return &Filter{name: name, rt: rt, expr: expr}, nil
}

// Name implements pipeline.Stage.
func (s *Filter) Name() string { return s.name }

// Reset implements pipeline.Stage.
func (s *Filter) Reset() {}

// Process implements pipeline.Stage. The record is exposed read-only:
// scripts see a copy of the fields, so a filter can never mutate what
// flows downstream.
func (s *Filter) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	env, err := s.rt.bind(rec, rctx)
	if err != nil {
		return model.Fail(err)
	}
	res, err := s.rt.runExpr(s.name, s.expr, env)
	if err != nil {
		return model.Fail(err).WithEmits(res.ctrl.emits)
	}
	if out, done := outcomeFor(res.ctrl); done {
		return out
	}
	if res.value != nil && bool(res.value.Truth()) {
		return model.Continue(rec).WithEmits(res.ctrl.emits)
	}
	return model.Drop().WithEmits(res.ctrl.emits)
}

// Derive executes a statement program whose top-level assignments
// become record fields. Assigning None deletes the field; names
// starting with an underscore, function definitions and the host
// bindings never write back.
type Derive struct {
	name string
	rt   *Runtime
	prog *starlark.Program
}

// NewDerive compiles src once. Field names resolve dynamically, so any
// free identifier is legal at compile time and missing fields surface
// as runtime errors.
func NewDerive(name, src string, rt *Runtime) (*Derive, error) {
	_, prog, err := starlark.SourceProgramOptions(rt.opts, name, src, anyPredeclared)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to compile derive %q", name)
	}
	return &Derive{name: name, rt: rt, prog: prog}, nil
}

// Name implements pipeline.Stage.
func (s *Derive) Name() string { return s.name }

// Reset implements pipeline.Stage.
func (s *Derive) Reset() {}

// Process implements pipeline.Stage.
func (s *Derive) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	env, err := s.rt.bind(rec, rctx)
	if err != nil {
		return model.Fail(err)
	}
	if rec.IsStructured() {
		fields, fieldsErr := rec.Structured()
		if fieldsErr != nil {
			return model.Fail(fieldsErr)
		}
		var bindErr error
		fields.Range(func(key string, value model.Value) bool {
			if isReserved(key) {
				return true
			}
			conv, convErr := toStarlark(value)
			if convErr != nil {
				bindErr = convErr
				return false
			}
			env[key] = conv
			return true
		})
		if bindErr != nil {
			return model.Fail(bindErr)
		}
	}

	globals, res, err := s.rt.runProgram(s.name, s.prog, env)
	if err != nil {
		return model.Fail(err).WithEmits(res.ctrl.emits)
	}
	if out, done := outcomeFor(res.ctrl); done {
		return out
	}
	if err := s.writeBack(rec, globals); err != nil {
		return model.Fail(err).WithEmits(res.ctrl.emits)
	}
	return model.Continue(rec).WithEmits(res.ctrl.emits)
}

// writeBack applies the program's top-level bindings to the record, in
// name order for determinism. A text record turns structured the first
// time a binding lands.
func (s *Derive) writeBack(rec *model.Record, globals starlark.StringDict) error {
	names := make([]string, 0, len(globals))
	for name := range globals {
		if isReserved(name) {
			continue
		}
		if _, callable := globals[name].(starlark.Callable); callable {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	var fields *model.Fields
	if rec.IsStructured() {
		fields, _ = rec.Structured()
	} else {
		fields = model.NewFields()
	}
	for _, name := range names {
		conv, err := fromStarlark(globals[name])
		if err != nil {
			return err
		}
		if conv == nil {
			fields.Delete(name)
			continue
		}
		fields.Set(name, conv)
	}
	if rec.IsText() {
		rec.ReplaceStructured(fields)
	}
	return nil
}

// anyPredeclared lets every free identifier compile; resolution
// happens per record against the bound environment. Universe builtins
// (None, len, str, ...) must stay universal or prog.Init fails with an
// uninitialized-predeclared error.
func anyPredeclared(name string) bool {
	_, ok := starlark.Universe[name]
	return !ok
}
