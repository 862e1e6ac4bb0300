// Package model provides the data structures for the pipeline package.
// It defines the record flowing through the pipeline, the per-record
// context lent to each stage, and the outcome returned by a stage
// invocation.
package model
