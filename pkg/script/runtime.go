package script

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/askiada/stelp/internal/store"
	"github.com/askiada/stelp/pkg/pipeline/model"
)

// reservedNames are environment bindings user code may read but whose
// assignments are never written back to record fields.
var reservedNames = map[string]struct{}{
	"line":       {},
	"data":       {},
	"meta":       {},
	"glob":       {},
	"window":     {},
	"skip":       {},
	"emit":       {},
	"exit":       {},
	"inc":        {},
	"get_global": {},
	"set_global": {},
	"result":     {},
}

// Runtime is the shared evaluation context for every script stage of
// a run: language options, the global store binding and the optional
// record window.
type Runtime struct {
	opts     *syntax.FileOptions
	glob     *globalDict
	stderr   io.Writer
	window   *windowBuffer
	preamble starlark.StringDict
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(rt *Runtime)

// WithStderr redirects print output. The default is os.Stderr.
func WithStderr(w io.Writer) RuntimeOption {
	return func(rt *Runtime) {
		rt.stderr = w
	}
}

// WithWindow keeps the last size records reachable from scripts as the
// window list.
func WithWindow(size int) RuntimeOption {
	return func(rt *Runtime) {
		rt.window = newWindowBuffer(size)
	}
}

// NewRuntime creates a runtime bound to the pipeline's global store.
func NewRuntime(globals *store.Store, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		opts: &syntax.FileOptions{
			Set:               true,
			While:             true,
			TopLevelControl:   true,
			GlobalReassign:    true,
			Recursion:         true,
			LoadBindsGlobally: true,
		},
		glob:   &globalDict{store: globals},
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// LoadInclude executes an include file once and merges its top-level
// bindings into the environment of every subsequent stage. Later
// includes shadow earlier ones.
func (rt *Runtime) LoadInclude(name string, src string) error {
	thread := newThread(name, rt.stderr)
	globals, err := starlark.ExecFileOptions(rt.opts, thread, name, src, rt.baseEnv())
	if err != nil {
		return errors.Wrapf(err, "unable to load include %q", name)
	}
	if rt.preamble == nil {
		rt.preamble = make(starlark.StringDict, len(globals))
	}
	for key, value := range globals {
		value.Freeze()
		rt.preamble[key] = value
	}
	return nil
}

// baseEnv returns the record-independent bindings.
func (rt *Runtime) baseEnv() starlark.StringDict {
	env := starlark.StringDict{
		"glob": rt.glob,
		"skip": starlark.NewBuiltin("skip", skipBuiltin),
		"emit": starlark.NewBuiltin("emit", emitBuiltin),
		"exit": starlark.NewBuiltin("exit", exitBuiltin),
		"inc":  starlark.NewBuiltin("inc", incBuiltin(rt.glob.store)),

		"get_global": starlark.NewBuiltin("get_global", getGlobalBuiltin(rt.glob.store)),
		"set_global": starlark.NewBuiltin("set_global", setGlobalBuiltin(rt.glob.store)),
	}
	for key, value := range rt.preamble {
		env[key] = value
	}
	return env
}

// bind builds the evaluation environment for one record: line for text
// records, data for structured ones, the other exposing None, plus
// meta, the window and the base bindings.
func (rt *Runtime) bind(rec *model.Record, rctx *model.Context) (starlark.StringDict, error) {
	env := rt.baseEnv()

	env["line"] = starlark.None
	env["data"] = starlark.None
	if rec != nil {
		if rec.IsText() {
			content, err := rec.Text()
			if err != nil {
				return nil, err
			}
			env["line"] = starlark.String(content)
		} else {
			fields, err := rec.Structured()
			if err != nil {
				return nil, err
			}
			dict, err := toStarlark(fields)
			if err != nil {
				return nil, err
			}
			env["data"] = dict
		}
	}

	meta := starlark.StringDict{
		"filename":      starlark.None,
		"line_number":   starlark.MakeInt(rctx.LineNumber),
		"record_number": starlark.MakeInt(rctx.RecordNumber),
	}
	if rctx.Filename != "" {
		meta["filename"] = starlark.String(rctx.Filename)
	}
	env["meta"] = starlarkstruct.FromStringDict(starlarkstruct.Default, meta)

	if rt.window != nil {
		view, err := rt.window.view()
		if err != nil {
			return nil, err
		}
		env["window"] = view
	}
	return env, nil
}

// isReserved reports whether a top-level script binding belongs to the
// host environment rather than the record.
func isReserved(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	_, ok := reservedNames[name]
	return ok
}
