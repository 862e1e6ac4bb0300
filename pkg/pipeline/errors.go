package pipeline

import (
	"fmt"
	"io"
	"syscall"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

var (
	// ErrPipelineMustBeSet is returned when a nil pipeline is used.
	ErrPipelineMustBeSet = errors.New("pipeline must be set")
	// ErrStageMustBeSet is returned when a nil stage is added.
	ErrStageMustBeSet = errors.New("stage must be set")
	// ErrWriterMustBeSet is returned when a pipeline is built without a sink.
	ErrWriterMustBeSet = errors.New("writer must be set")
)

// Kind classifies a per-record failure for strategy handling.
type Kind int

const (
	// KindDecode is malformed input for the configured format.
	KindDecode Kind = iota
	// KindScript is a syntax or runtime error in user code.
	KindScript
	// KindTypeMismatch is Text/Structured record API misuse.
	KindTypeMismatch
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindScript:
		return "script"
	case KindTypeMismatch:
		return "type mismatch"
	default:
		return "unknown"
	}
}

// StageError is a recoverable-by-policy per-record failure. I/O errors
// are never wrapped in a StageError: they abort the run regardless of
// strategy.
type StageError struct {
	Kind  Kind
	Stage string
	Line  int
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s error in stage %q at line %d: %v", e.Kind, e.Stage, e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// NewDecodeError classifies a malformed-input failure.
func NewDecodeError(stage string, line int, err error) *StageError {
	return &StageError{Kind: KindDecode, Stage: stage, Line: line, Err: err}
}

// NewScriptError classifies a user-code failure, promoting record view
// misuse to a type mismatch.
func NewScriptError(stage string, line int, err error) *StageError {
	kind := KindScript
	if errors.Is(err, model.ErrTypeMismatch) {
		kind = KindTypeMismatch
	}
	return &StageError{Kind: kind, Stage: stage, Line: line, Err: err}
}

// AsStageError unwraps err into a StageError if it is one.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}

// ErrorStrategy governs the disposition of StageErrors.
type ErrorStrategy int

const (
	// Skip counts the error, drops the record and continues.
	Skip ErrorStrategy = iota
	// FailFast aborts the run on the first error.
	FailFast
)

// String returns the strategy name.
func (s ErrorStrategy) String() string {
	if s == FailFast {
		return "fail-fast"
	}
	return "skip"
}

// IsBrokenPipe reports whether err is a downstream-closed-the-sink
// write failure, which terminates the run gracefully.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe)
}
