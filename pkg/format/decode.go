package format

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/pkg/pipeline"
	"github.com/askiada/stelp/pkg/pipeline/model"
)

const maxLineBytes = 4 * 1024 * 1024

// NewDecoder builds the decoder for an input format reading from r.
func NewDecoder(format InputFormat, r io.Reader) pipeline.Decoder {
	switch format {
	case InputJSONL:
		return &recordDecoder{lines: newLineDecoder(r), stage: "decode:jsonl", parse: parseJSONLine}
	case InputCSV:
		return newSeparatedDecoder(r, ',', "decode:csv")
	case InputTSV:
		return newSeparatedDecoder(r, '\t', "decode:tsv")
	case InputLogfmt:
		return &recordDecoder{lines: newLineDecoder(r), stage: "decode:logfmt", parse: parseLogfmtLine}
	case InputSyslog:
		return &recordDecoder{lines: newLineDecoder(r), stage: "decode:syslog", parse: parseSyslogLine}
	case InputCombined:
		return &recordDecoder{lines: newLineDecoder(r), stage: "decode:combined", parse: parseCombinedLine}
	case InputFields:
		return &recordDecoder{lines: newLineDecoder(r), stage: "decode:fields", parse: parseFieldsLine}
	default:
		return newLineDecoder(r)
	}
}

// lineDecoder yields one text record per input line.
type lineDecoder struct {
	scanner *bufio.Scanner
}

func newLineDecoder(r io.Reader) *lineDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineDecoder{scanner: scanner}
}

// Next implements pipeline.Decoder.
func (d *lineDecoder) Next() (*model.Record, int, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, 0, errors.Wrap(err, "unable to read input")
		}
		return nil, 0, io.EOF
	}
	return model.NewText(d.scanner.Text()), 1, nil
}

// recordDecoder wraps a line decoder with a per-line structured
// parser. Blank lines are separators, not records: they advance the
// line count but never reach the pipeline or its counters.
type recordDecoder struct {
	lines *lineDecoder
	stage string
	parse func(line string) (*model.Fields, error)
}

// Next implements pipeline.Decoder.
func (d *recordDecoder) Next() (*model.Record, int, error) {
	consumed := 0
	for {
		rec, n, err := d.lines.Next()
		consumed += n
		if err != nil {
			return nil, consumed, err
		}
		line, _ := rec.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := d.parse(line)
		if err != nil {
			return nil, consumed, pipeline.NewDecodeError(d.stage, 0, err)
		}
		return model.NewStructured(fields), consumed, nil
	}
}

func parseJSONLine(line string) (*model.Fields, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.Errorf("expected a JSON object, got %T", raw)
	}
	conv, err := model.Normalize(widenNumbers(obj))
	if err != nil {
		return nil, err
	}
	fields, ok := conv.(*model.Fields)
	if !ok {
		return nil, errors.New("expected a JSON object")
	}
	return fields, nil
}

// widenNumbers rewrites json.Number leaves into int64 or float64.
func widenNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for key, item := range val {
			val[key] = widenNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = widenNumbers(item)
		}
		return val
	default:
		return v
	}
}

// separatedDecoder reads delimiter-separated rows under a header row.
type separatedDecoder struct {
	reader *csv.Reader
	stage  string
	header []string
}

func newSeparatedDecoder(r io.Reader, comma rune, stage string) *separatedDecoder {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.ReuseRecord = true
	return &separatedDecoder{reader: reader, stage: stage}
}

// Next implements pipeline.Decoder.
func (d *separatedDecoder) Next() (*model.Record, int, error) {
	consumed := 0
	if d.header == nil {
		row, err := d.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, consumed, io.EOF
		}
		if err != nil {
			return nil, consumed + 1, pipeline.NewDecodeError(d.stage, 0, errors.Wrap(err, "invalid header row"))
		}
		consumed++
		d.header = make([]string, len(row))
		copy(d.header, row)
	}
	row, err := d.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, consumed, io.EOF
	}
	if err != nil {
		return nil, consumed + 1, pipeline.NewDecodeError(d.stage, 0, err)
	}
	fields := model.NewFields()
	for i, key := range d.header {
		if i < len(row) {
			fields.Set(key, row[i])
		} else {
			fields.Set(key, "")
		}
	}
	return model.NewStructured(fields), consumed + 1, nil
}

func parseFieldsLine(line string) (*model.Fields, error) {
	fields := model.NewFields()
	for i, token := range strings.Fields(line) {
		fields.Set("f"+strconv.Itoa(i+1), token)
	}
	return fields, nil
}

func parseLogfmtLine(line string) (*model.Fields, error) {
	fields := model.NewFields()
	rest := strings.TrimSpace(line)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, errors.Errorf("malformed logfmt near %q", rest)
		}
		key := rest[:eq]
		if strings.ContainsAny(key, " \t\"") {
			return nil, errors.Errorf("malformed logfmt key %q", key)
		}
		rest = rest[eq+1:]

		var raw string
		if strings.HasPrefix(rest, `"`) {
			end := 1
			for end < len(rest) {
				if rest[end] == '\\' {
					end += 2
					continue
				}
				if rest[end] == '"' {
					break
				}
				end++
			}
			if end >= len(rest) {
				return nil, errors.Errorf("unterminated quote in value of %q", key)
			}
			unquoted, err := strconv.Unquote(rest[:end+1])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid quoting in value of %q", key)
			}
			fields.Set(key, unquoted)
			rest = strings.TrimLeft(rest[end+1:], " \t")
			continue
		}
		if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
			raw, rest = rest[:sp], strings.TrimLeft(rest[sp+1:], " \t")
		} else {
			raw, rest = rest, ""
		}
		fields.Set(key, coerceScalar(raw))
	}
	return fields, nil
}

// coerceScalar types an unquoted logfmt value.
func coerceScalar(raw string) model.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

var syslogRe = regexp.MustCompile(`^(\w{3}\s+\d{1,2} \d{2}:\d{2}:\d{2}) (\S+) ([^:\[\s]+)(?:\[(\d+)\])?: ?(.*)$`)

func parseSyslogLine(line string) (*model.Fields, error) {
	match := syslogRe.FindStringSubmatch(line)
	if match == nil {
		return nil, errors.Errorf("not a syslog line: %q", line)
	}
	fields := model.NewFields()
	fields.Set("timestamp", match[1])
	fields.Set("hostname", match[2])
	fields.Set("program", match[3])
	if match[4] != "" {
		pid, _ := strconv.ParseInt(match[4], 10, 64)
		fields.Set("pid", pid)
	}
	fields.Set("message", match[5])
	return fields, nil
}

var combinedRe = regexp.MustCompile(`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) ([^"]+)" (\d{3}) (\d+|-)(?: "([^"]*)" "([^"]*)")?`)

func parseCombinedLine(line string) (*model.Fields, error) {
	match := combinedRe.FindStringSubmatch(line)
	if match == nil {
		return nil, errors.Errorf("not a combined log line: %q", line)
	}
	fields := model.NewFields()
	fields.Set("remote_addr", match[1])
	fields.Set("remote_user", match[2])
	fields.Set("time_local", match[3])
	fields.Set("method", match[4])
	fields.Set("path", match[5])
	fields.Set("protocol", match[6])
	status, _ := strconv.ParseInt(match[7], 10, 64)
	fields.Set("status", status)
	if match[8] != "-" {
		size, _ := strconv.ParseInt(match[8], 10, 64)
		fields.Set("bytes_sent", size)
	}
	if match[9] != "" || match[10] != "" {
		fields.Set("referer", match[9])
		fields.Set("user_agent", match[10])
	}
	return fields, nil
}
