// Package pipeline implements the record processing engine: an ordered
// sequence of stages driven over one or more input sources by a
// strictly single-threaded orchestrator.
//
// Records are processed one at a time, start to finish, through the
// full stage sequence before the next record is read. Determinism is a
// contract, not an accident: global-state mutation order, emit
// ordering and the final exit code all depend on it. Do not introduce
// concurrent stage execution.
package pipeline
