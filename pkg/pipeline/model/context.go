package model

import "github.com/askiada/stelp/internal/store"

// Context is the per-record metadata lent to a stage for the duration
// of a single invocation. Stages must not retain it past their call.
type Context struct {
	// Filename is the source file name, empty when reading stdin.
	Filename string
	// LineNumber counts raw input lines consumed in the current
	// source, 1-based. A multi-line chunk advances it by the number of
	// lines it aggregated.
	LineNumber int
	// RecordNumber counts logical records read from the current
	// source, 1-based, reset per source.
	RecordNumber int
	// Globals is the run-wide variable store, shared by all stages and
	// persistent across records and sources.
	Globals *store.Store
	// Debug enables per-record diagnostics in stages.
	Debug bool
}
