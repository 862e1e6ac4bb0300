// Package format decodes input sources into records and encodes
// records back out, reconciling structured output against a stable
// key schema.
package format

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// InputFormat selects the decoder applied to a source.
type InputFormat int

const (
	// InputLine yields one text record per line.
	InputLine InputFormat = iota
	// InputJSONL parses one JSON object per line.
	InputJSONL
	// InputCSV parses comma-separated rows under a header row.
	InputCSV
	// InputTSV parses tab-separated rows under a header row.
	InputTSV
	// InputLogfmt parses key=value pairs.
	InputLogfmt
	// InputSyslog parses classic BSD syslog lines.
	InputSyslog
	// InputCombined parses Apache/nginx combined access log lines.
	InputCombined
	// InputFields splits each line on whitespace into numbered fields.
	InputFields
)

// OutputFormat selects the encoder applied to structured records.
type OutputFormat int

const (
	// OutputAuto mirrors the input: text stays text, structured
	// records render as JSONL.
	OutputAuto OutputFormat = iota
	// OutputJSONL renders one JSON object per line.
	OutputJSONL
	// OutputCSV renders comma-separated rows with a header.
	OutputCSV
	// OutputTSV renders tab-separated rows with a header.
	OutputTSV
	// OutputLogfmt renders key=value pairs.
	OutputLogfmt
	// OutputPlain renders field values joined by a space, no keys.
	OutputPlain
)

// ErrUnknownFormat is returned for a format name that is not
// recognized.
var ErrUnknownFormat = errors.New("unknown format")

// ParseInput maps a format flag value to an InputFormat.
func ParseInput(name string) (InputFormat, error) {
	switch strings.ToLower(name) {
	case "", "line":
		return InputLine, nil
	case "jsonl", "json":
		return InputJSONL, nil
	case "csv":
		return InputCSV, nil
	case "tsv":
		return InputTSV, nil
	case "logfmt":
		return InputLogfmt, nil
	case "syslog":
		return InputSyslog, nil
	case "combined":
		return InputCombined, nil
	case "fields":
		return InputFields, nil
	default:
		return 0, errors.Wrapf(ErrUnknownFormat, "input %q", name)
	}
}

// ParseOutput maps a format flag value to an OutputFormat.
func ParseOutput(name string) (OutputFormat, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return OutputAuto, nil
	case "jsonl", "json":
		return OutputJSONL, nil
	case "csv":
		return OutputCSV, nil
	case "tsv":
		return OutputTSV, nil
	case "logfmt":
		return OutputLogfmt, nil
	case "plain":
		return OutputPlain, nil
	default:
		return 0, errors.Wrapf(ErrUnknownFormat, "output %q", name)
	}
}

// DetectInput picks an input format from a file extension, falling
// back to line.
func DetectInput(path string) InputFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		return InputJSONL
	case ".csv":
		return InputCSV
	case ".tsv":
		return InputTSV
	case ".logfmt":
		return InputLogfmt
	default:
		return InputLine
	}
}
