package main

import "strings"

type stageKind string

const (
	stageEval    stageKind = "eval"
	stageFilter  stageKind = "filter"
	stageDerive  stageKind = "derive"
	stageExtract stageKind = "extract"
)

type stageSpec struct {
	kind stageKind
	src  string
}

// valueFlags are the flags that consume the following argument, so the
// ordering scan does not mistake their values for flags.
var valueFlags = map[string]struct{}{
	"-e": {}, "--eval": {},
	"--filter": {},
	"-d": {}, "--derive": {},
	"--extract-vars": {},
	"-s":             {}, "--script": {},
	"-I": {}, "--include": {},
	"--pipeline": {},
	"--begin":    {}, "--end": {},
	"-f": {}, "--input-format": {},
	"-F": {}, "--output-format": {},
	"-k": {}, "--keys": {},
	"-K": {}, "--remove-keys": {},
	"--chunk-lines": {}, "--chunk-start": {}, "--chunk-delim": {},
	"--chunk-max-lines": {}, "--chunk-max-bytes": {},
	"--window": {}, "--levels": {}, "--exclude-levels": {},
	"-o": {}, "--output": {}, "--draw": {},
}

// orderedSpecs interleaves the stage flags back into their command
// line order. Flag parsing groups repeated flags per name; here the
// raw argument list decides which eval runs before which filter.
func orderedSpecs(argv, evals, filters, derives []string, extractSpec string) []stageSpec {
	var (
		specs      []stageSpec
		ei, fi, di int
		extracted  bool
		skipValue  bool
	)
	for _, arg := range argv {
		if skipValue {
			skipValue = false
			continue
		}
		name := arg
		hasInline := false
		if i := strings.IndexByte(arg, '='); i >= 0 && strings.HasPrefix(arg, "-") {
			name = arg[:i]
			hasInline = true
		}
		if _, takesValue := valueFlags[name]; takesValue && !hasInline {
			skipValue = true
		}
		switch name {
		case "-e", "--eval":
			if ei < len(evals) {
				specs = append(specs, stageSpec{kind: stageEval, src: evals[ei]})
				ei++
			}
		case "--filter":
			if fi < len(filters) {
				specs = append(specs, stageSpec{kind: stageFilter, src: filters[fi]})
				fi++
			}
		case "-d", "--derive":
			if di < len(derives) {
				specs = append(specs, stageSpec{kind: stageDerive, src: derives[di]})
				di++
			}
		case "--extract-vars":
			if extractSpec != "" && !extracted {
				specs = append(specs, stageSpec{kind: stageExtract, src: extractSpec})
				extracted = true
			}
		}
	}
	return specs
}
