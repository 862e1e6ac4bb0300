package format

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Writer encodes records onto an output stream. Text records always
// pass through verbatim; structured records go through the reconciler
// and the selected encoder.
type Writer struct {
	out        *bufio.Writer
	format     OutputFormat
	reconciler *Reconciler
	csv        *csv.Writer
	headerDone bool
}

// NewWriter builds the sink for format writing to w.
func NewWriter(w io.Writer, format OutputFormat, reconciler *Reconciler) *Writer {
	sink := &Writer{
		out:        bufio.NewWriter(w),
		format:     format,
		reconciler: reconciler,
	}
	switch format {
	case OutputCSV:
		sink.csv = csv.NewWriter(sink.out)
	case OutputTSV:
		sink.csv = csv.NewWriter(sink.out)
		sink.csv.Comma = '\t'
	}
	return sink
}

// WriteRaw writes an already-rendered line.
func (w *Writer) WriteRaw(line string) error {
	if _, err := w.out.WriteString(line); err != nil {
		return err
	}
	return w.out.WriteByte('\n')
}

// Write encodes one record.
func (w *Writer) Write(rec *model.Record) error {
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
	keys, row := w.reconciler.Apply(fields)

	switch w.format {
	case OutputCSV, OutputTSV:
		return w.writeSeparated(keys, row)
	case OutputLogfmt:
		return w.writeLogfmt(keys, row)
	case OutputPlain:
		return w.writePlain(row)
	default:
		return w.writeJSON(keys, row)
	}
}

// Flush drains buffered output.
func (w *Writer) Flush() error {
	if w.csv != nil {
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return err
		}
	}
	return w.out.Flush()
}

func (w *Writer) writeJSON(keys []string, row []model.Value) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendJSON(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := appendJSON(&buf, row[i]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return w.WriteRaw(buf.String())
}

// appendJSON renders a value keeping nested field order.
func appendJSON(buf *bytes.Buffer, v model.Value) error {
	switch val := v.(type) {
	case *model.Fields:
		buf.WriteByte('{')
		first := true
		var err error
		val.Range(func(key string, value model.Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err = appendJSON(buf, key); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = appendJSON(buf, value)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	case model.List:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "unable to encode value")
		}
		buf.Write(raw)
		return nil
	}
}

func (w *Writer) writeSeparated(keys []string, row []model.Value) error {
	if !w.headerDone {
		if err := w.csv.Write(keys); err != nil {
			return err
		}
		w.headerDone = true
	}
	cells := make([]string, len(row))
	for i, value := range row {
		cell, err := renderScalar(value)
		if err != nil {
			return err
		}
		cells[i] = cell
	}
	return w.csv.Write(cells)
}

func (w *Writer) writeLogfmt(keys []string, row []model.Value) error {
	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		cell, err := renderScalar(row[i])
		if err != nil {
			return err
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		if cell == "" || strings.ContainsAny(cell, " \t\"=") {
			sb.WriteString(strconv.Quote(cell))
		} else {
			sb.WriteString(cell)
		}
	}
	return w.WriteRaw(sb.String())
}

func (w *Writer) writePlain(row []model.Value) error {
	cells := make([]string, len(row))
	for i, value := range row {
		cell, err := renderScalar(value)
		if err != nil {
			return err
		}
		cells[i] = cell
	}
	return w.WriteRaw(strings.Join(cells, " "))
}

// renderScalar flattens a value to a single cell. Nested structures
// render as compact JSON.
func renderScalar(v model.Value) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		var buf bytes.Buffer
		if err := appendJSON(&buf, v); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}
