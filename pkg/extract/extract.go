// Package extract turns text records into structured ones by matching
// a placeholder pattern of the form "{name}" or "{name:type}" against
// the line. Supported types are int, float, word and string.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// ErrBadPattern is returned for a pattern the compiler cannot accept.
var ErrBadPattern = errors.New("invalid extraction pattern")

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::(int|float|word|string))?\}`)

type capture struct {
	name string
	kind string
}

// Stage matches the compiled pattern against text records and replaces
// a matching record with the extracted fields. Non-matching records
// and structured records pass through unchanged.
type Stage struct {
	name     string
	re       *regexp.Regexp
	captures []capture
}

// New compiles pattern once. Literal text between placeholders matches
// verbatim; the pattern is unanchored.
func New(name, pattern string) (*Stage, error) {
	locs := placeholderRe.FindAllStringSubmatchIndex(pattern, -1)
	if len(locs) == 0 {
		return nil, errors.Wrapf(ErrBadPattern, "no placeholders in %q", pattern)
	}

	var (
		sb       strings.Builder
		captures []capture
		last     int
		seen     = map[string]struct{}{}
	)
	for _, loc := range locs {
		sb.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		last = loc[1]

		fieldName := pattern[loc[2]:loc[3]]
		kind := "string"
		if loc[4] >= 0 {
			kind = pattern[loc[4]:loc[5]]
		}
		if _, dup := seen[fieldName]; dup {
			return nil, errors.Wrapf(ErrBadPattern, "duplicate placeholder %q", fieldName)
		}
		seen[fieldName] = struct{}{}
		captures = append(captures, capture{name: fieldName, kind: kind})

		switch kind {
		case "int":
			sb.WriteString(`([+-]?\d+)`)
		case "float":
			sb.WriteString(`([+-]?\d+(?:\.\d+)?)`)
		case "word":
			sb.WriteString(`(\S+)`)
		default:
			sb.WriteString(`(.+?)`)
		}
	}
	sb.WriteString(regexp.QuoteMeta(pattern[last:]))

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errors.Wrapf(ErrBadPattern, "unable to compile %q: %v", pattern, err)
	}
	return &Stage{name: name, re: re, captures: captures}, nil
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return s.name }

// Reset implements pipeline.Stage.
func (s *Stage) Reset() {}

// Process implements pipeline.Stage.
func (s *Stage) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	if !rec.IsText() {
		return model.Continue(rec)
	}
	content, err := rec.Text()
	if err != nil {
		return model.Fail(err)
	}
	match := s.re.FindStringSubmatch(content)
	if match == nil {
		return model.Continue(rec)
	}

	fields := model.NewFields()
	for i, c := range s.captures {
		raw := match[i+1]
		switch c.kind {
		case "int":
			n, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				return model.Fail(errors.Wrapf(convErr, "field %q is not an integer", c.name))
			}
			fields.Set(c.name, n)
		case "float":
			f, convErr := strconv.ParseFloat(raw, 64)
			if convErr != nil {
				return model.Fail(errors.Wrapf(convErr, "field %q is not a float", c.name))
			}
			fields.Set(c.name, f)
		default:
			fields.Set(c.name, raw)
		}
	}
	rec.ReplaceStructured(fields)
	return model.Continue(rec)
}
