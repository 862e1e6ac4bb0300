package model

// OutcomeKind is the closed set of stage results.
type OutcomeKind int

const (
	// OutcomeContinue proceeds to the next stage with Outcome.Record.
	OutcomeContinue OutcomeKind = iota
	// OutcomeFanOut proceeds with each of Outcome.Records
	// independently, re-entering the pipeline at the next stage.
	OutcomeFanOut
	// OutcomeDrop discards the record silently.
	OutcomeDrop
	// OutcomeExit terminates the whole run with Outcome.Code.
	OutcomeExit
	// OutcomeError reports a recoverable-by-policy stage failure.
	OutcomeError
)

// String returns the kind name for diagnostics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeFanOut:
		return "fan-out"
	case OutcomeDrop:
		return "drop"
	case OutcomeExit:
		return "exit"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of running one record through one stage.
// Exactly one kind applies; Emits may accompany any kind and are
// flushed to the sink before the record's own output.
type Outcome struct {
	Kind    OutcomeKind
	Record  *Record
	Records []*Record
	Emits   []string
	Code    int
	Message string
	Err     error
}

// Continue returns an outcome proceeding with rec.
func Continue(rec *Record) Outcome {
	return Outcome{Kind: OutcomeContinue, Record: rec}
}

// FanOut returns an outcome producing several independent records.
func FanOut(recs []*Record) Outcome {
	return Outcome{Kind: OutcomeFanOut, Records: recs}
}

// Drop returns an outcome discarding the record.
func Drop() Outcome {
	return Outcome{Kind: OutcomeDrop}
}

// Exit returns an outcome terminating the run with code. An empty
// message prints nothing.
func Exit(code int, message string) Outcome {
	return Outcome{Kind: OutcomeExit, Code: code, Message: message}
}

// Fail returns an error outcome carrying err.
func Fail(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

// WithEmits attaches side-output lines to the outcome.
func (o Outcome) WithEmits(emits []string) Outcome {
	o.Emits = emits
	return o
}
