// Package levels recognizes log severity levels in records, gates the
// stream on them and colorizes their tokens for terminal output.
package levels

import (
	"regexp"
	"strings"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Level is a recognized log severity.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

// String returns the canonical upper-case token.
func (l Level) String() string {
	switch l {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var aliases = map[string]Level{
	"trace":    Trace,
	"debug":    Debug,
	"dbg":      Debug,
	"info":     Info,
	"notice":   Info,
	"warn":     Warn,
	"warning":  Warn,
	"error":    Error,
	"err":      Error,
	"fatal":    Fatal,
	"critical": Fatal,
	"panic":    Fatal,
}

// levelKeys are the structured field names inspected, in order.
var levelKeys = []string{"level", "severity", "lvl", "loglevel"}

var tokenRe = regexp.MustCompile(`(?i)\b(trace|debug|dbg|info|notice|warn|warning|error|err|fatal|critical|panic)\b`)

// Parse maps a user-supplied level name to a Level.
func Parse(name string) (Level, bool) {
	l, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// ParseList parses a comma-separated level list.
func ParseList(spec string) ([]Level, bool) {
	var out []Level
	for _, part := range strings.Split(spec, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, ok := Parse(part)
		if !ok {
			return nil, false
		}
		out = append(out, l)
	}
	return out, len(out) > 0
}

// Detect finds the severity of a record. Structured records are
// inspected through the well-known level field names, text records by
// scanning for the first level token.
func Detect(rec *model.Record) (Level, bool) {
	if rec.IsStructured() {
		fields, err := rec.Structured()
		if err != nil {
			return 0, false
		}
		for _, key := range levelKeys {
			raw, found := fields.Get(key)
			if !found {
				continue
			}
			if s, isString := raw.(string); isString {
				if l, ok := Parse(s); ok {
					return l, true
				}
			}
		}
		return 0, false
	}
	content, err := rec.Text()
	if err != nil {
		return 0, false
	}
	match := tokenRe.FindString(content)
	if match == "" {
		return 0, false
	}
	return Parse(match)
}
