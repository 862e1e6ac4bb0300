package script

import (
	"fmt"
	"io"

	"go.starlark.net/starlark"

	"github.com/askiada/stelp/internal/store"
)

const controlKey = "stelp.control"

// control carries the per-evaluation side effects of the host
// builtins. One instance lives on each thread for one evaluation.
type control struct {
	skip    bool
	emits   []string
	exited  bool
	code    int
	message string
}

func controlOf(thread *starlark.Thread) *control {
	ctrl, _ := thread.Local(controlKey).(*control)
	return ctrl
}

// newThread returns a thread with a fresh control and print routed to
// the diagnostic stream.
func newThread(name string, stderr io.Writer) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(stderr, msg)
		},
	}
	thread.SetLocal(controlKey, &control{})
	return thread
}

func skipBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	controlOf(thread).skip = true
	return nil, errSkipSignal
}

func emitBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var line string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "line", &line); err != nil {
		return nil, err
	}
	ctrl := controlOf(thread)
	ctrl.emits = append(ctrl.emits, line)
	return starlark.None, nil
}

func exitBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		code    = 0
		message string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "code?", &code, "message?", &message); err != nil {
		return nil, err
	}
	ctrl := controlOf(thread)
	ctrl.exited = true
	ctrl.code = code
	ctrl.message = message
	return nil, errExitSignal
}

// getGlobalBuiltin and setGlobalBuiltin are the function-call spelling
// of the glob mapping, with an optional default on reads.
func getGlobalBuiltin(globals *store.Store) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name string
			dflt starlark.Value = starlark.None
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &dflt); err != nil {
			return nil, err
		}
		raw, found := globals.Get(name)
		if !found {
			return dflt, nil
		}
		return toStarlark(raw)
	}
}

func setGlobalBuiltin(globals *store.Store) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name  string
			value starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "value", &value); err != nil {
			return nil, err
		}
		conv, err := fromStarlark(value)
		if err != nil {
			return nil, err
		}
		globals.Set(name, conv)
		return starlark.None, nil
	}
}

func incBuiltin(globals *store.Store) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		return starlark.MakeInt64(globals.Increment(name)), nil
	}
}

// globalDict exposes the run-wide variable store as a mutable mapping
// named glob. Reads and writes go straight to the store, so values
// written by one stage are visible to the next within the same record.
type globalDict struct {
	store *store.Store
}

var (
	_ starlark.Mapping   = (*globalDict)(nil)
	_ starlark.HasSetKey = (*globalDict)(nil)
)

func (g *globalDict) String() string        { return "glob" }
func (g *globalDict) Type() string          { return "glob" }
func (g *globalDict) Freeze()               {}
func (g *globalDict) Truth() starlark.Bool  { return starlark.Bool(g.store.Len() > 0) }
func (g *globalDict) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: glob") }

func (g *globalDict) Get(k starlark.Value) (starlark.Value, bool, error) {
	key, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("glob key %s is not a string", k.String())
	}
	raw, found := g.store.Get(string(key))
	if !found {
		return starlark.None, false, nil
	}
	conv, err := toStarlark(raw)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (g *globalDict) SetKey(k, v starlark.Value) error {
	key, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("glob key %s is not a string", k.String())
	}
	conv, err := fromStarlark(v)
	if err != nil {
		return err
	}
	g.store.Set(string(key), conv)
	return nil
}
