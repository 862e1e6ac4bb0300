package pipeline_test

import (
	"io"
	"strings"
	"syscall"

	"github.com/askiada/stelp/pkg/pipeline"
	"github.com/askiada/stelp/pkg/pipeline/model"
)

// sliceDecoder yields one text record per preset line.
type sliceDecoder struct {
	lines []string
	idx   int
	errAt int
	err   error
}

func newSliceDecoder(lines ...string) *sliceDecoder {
	return &sliceDecoder{lines: lines, errAt: -1}
}

func (d *sliceDecoder) Next() (*model.Record, int, error) {
	if d.idx == d.errAt {
		d.idx++
		return nil, 1, d.err
	}
	if d.idx >= len(d.lines) {
		return nil, 0, io.EOF
	}
	line := d.lines[d.idx]
	d.idx++
	return model.NewText(line), 1, nil
}

// memWriter collects output lines, optionally failing after a number
// of writes.
type memWriter struct {
	lines      []string
	failAfter  int
	failWith   error
	flushCount int
}

func newMemWriter() *memWriter {
	return &memWriter{failAfter: -1}
}

func brokenPipeWriter(after int) *memWriter {
	return &memWriter{failAfter: after, failWith: syscall.EPIPE}
}

func (w *memWriter) Write(rec *model.Record) error {
	if rec.IsText() {
		content, err := rec.Text()
		if err != nil {
			return err
		}
		return w.WriteRaw(content)
	}
	fields, err := rec.Structured()
	if err != nil {
		return err
	}
	var parts []string
	fields.Range(func(key string, value model.Value) bool {
		parts = append(parts, key)
		return true
	})
	return w.WriteRaw("{" + strings.Join(parts, ",") + "}")
}

func (w *memWriter) WriteRaw(line string) error {
	if w.failAfter >= 0 && len(w.lines) >= w.failAfter {
		return w.failWith
	}
	w.lines = append(w.lines, line)
	return nil
}

func (w *memWriter) Flush() error {
	w.flushCount++
	return nil
}

// funcStage adapts a function into a stage and counts resets.
type funcStage struct {
	name   string
	fn     func(rec *model.Record, rctx *model.Context) model.Outcome
	resets int
}

func (s *funcStage) Name() string { return s.name }
func (s *funcStage) Reset()       { s.resets++ }
func (s *funcStage) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	return s.fn(rec, rctx)
}

func passThrough(name string) *funcStage {
	return &funcStage{name: name, fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		return model.Continue(rec)
	}}
}

func textOf(rec *model.Record) string {
	content, _ := rec.Text()
	return content
}

func upperStage(name string) *funcStage {
	return &funcStage{name: name, fn: func(rec *model.Record, _ *model.Context) model.Outcome {
		rec.ReplaceText(strings.ToUpper(textOf(rec)))
		return model.Continue(rec)
	}}
}

var _ pipeline.Decoder = (*sliceDecoder)(nil)
var _ pipeline.Writer = (*memWriter)(nil)
var _ pipeline.Stage = (*funcStage)(nil)
