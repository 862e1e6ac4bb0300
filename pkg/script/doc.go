// Package script hosts user Starlark code as pipeline stages. Each
// stage compiles its source once and evaluates it per record against
// an environment exposing the record, its context and the global
// variable store.
package script
