package script

import (
	"go.starlark.net/starlark"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// windowBuffer keeps the last n record snapshots, oldest first.
// Snapshots are frozen at push time so scripts cannot rewrite history.
type windowBuffer struct {
	size  int
	items []starlark.Value
}

func newWindowBuffer(size int) *windowBuffer {
	if size < 1 {
		size = 1
	}
	return &windowBuffer{size: size}
}

func (w *windowBuffer) push(rec *model.Record) error {
	var (
		snap starlark.Value
		err  error
	)
	if rec.IsText() {
		content, textErr := rec.Text()
		if textErr != nil {
			return textErr
		}
		snap = starlark.String(content)
	} else {
		fields, fieldsErr := rec.Structured()
		if fieldsErr != nil {
			return fieldsErr
		}
		snap, err = toStarlark(fields)
		if err != nil {
			return err
		}
	}
	snap.Freeze()
	w.items = append(w.items, snap)
	if len(w.items) > w.size {
		w.items = w.items[1:]
	}
	return nil
}

func (w *windowBuffer) reset() {
	w.items = w.items[:0]
}

// view returns the buffer contents as a fresh list. Scripts may mutate
// the list itself without affecting the buffer.
func (w *windowBuffer) view() (starlark.Value, error) {
	elems := make([]starlark.Value, len(w.items))
	copy(elems, w.items)
	return starlark.NewList(elems), nil
}

// WindowStage records each passing record into the runtime's window
// buffer. It sits ahead of the script stages so that the window a
// script sees always ends with the current record.
type WindowStage struct {
	name string
	rt   *Runtime
}

// NewWindowStage creates the window capture stage. The runtime must
// have been built with WithWindow.
func NewWindowStage(name string, rt *Runtime) *WindowStage {
	return &WindowStage{name: name, rt: rt}
}

// Name implements pipeline.Stage.
func (s *WindowStage) Name() string { return s.name }

// Reset clears the window between sources.
func (s *WindowStage) Reset() {
	if s.rt.window != nil {
		s.rt.window.reset()
	}
}

// Process snapshots the record and passes it through unchanged.
func (s *WindowStage) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	if s.rt.window != nil {
		if err := s.rt.window.push(rec); err != nil {
			return model.Fail(err)
		}
	}
	return model.Continue(rec)
}
