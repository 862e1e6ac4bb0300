package pipeline

import (
	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Stage is one step of the pipeline. Process receives exclusive access
// to the record and the per-record context for the duration of the
// call and returns exactly one outcome.
type Stage interface {
	// Process runs the stage over one record.
	Process(rec *model.Record, rctx *model.Context) model.Outcome
	// Name identifies the stage in errors, stats and the plan graph.
	Name() string
	// Reset clears per-source state. Called between sources.
	Reset()
}

// Decoder yields records from a single input source. Next returns the
// decoded record and the number of raw input lines it consumed, or
// io.EOF when the source is exhausted. A malformed unit returns a
// decode-classified error; the decoder stays usable for the next unit.
type Decoder interface {
	Next() (*model.Record, int, error)
}

// Writer is the output sink. Write serializes a record through the
// configured output codec; WriteRaw writes an already-rendered line,
// used for emit side output and exit messages.
type Writer interface {
	Write(rec *model.Record) error
	WriteRaw(line string) error
	Flush() error
}

// Source is one input to process: a decoder plus the name reported in
// record contexts. Name is empty for stdin.
type Source struct {
	Name    string
	Decoder Decoder
}
