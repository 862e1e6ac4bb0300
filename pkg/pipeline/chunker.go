package pipeline

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Default chunk safety caps. Exceeding either forcibly flushes the
// current chunk.
const (
	DefaultMaxChunkLines = 1000
	DefaultMaxChunkBytes = 1 << 20
)

// ChunkStrategy decides where one multi-line chunk ends and the next
// begins. Exactly one of the fields is set.
type ChunkStrategy struct {
	// FixedLines groups every N lines into one chunk.
	FixedLines int
	// StartPattern begins a new chunk on every line matching the pattern.
	StartPattern *regexp.Regexp
	// Delimiter separates chunks; the delimiter line itself is excluded.
	Delimiter string
}

// ChunkConfig is a strategy plus safety caps. Zero caps use the defaults.
type ChunkConfig struct {
	Strategy ChunkStrategy
	MaxLines int
	MaxBytes int
}

type chunk struct {
	content string
	// lineCount is the content line count; consumed additionally
	// includes delimiter lines swallowed at the boundary.
	lineCount int
	consumed  int
}

// chunker accumulates raw lines into chunks per the configured
// strategy, bounded by the safety caps.
type chunker struct {
	cfg      ChunkConfig
	buf      strings.Builder
	lines    int
	consumed int
}

func newChunker(cfg ChunkConfig) *chunker {
	if cfg.MaxLines == 0 {
		cfg.MaxLines = DefaultMaxChunkLines
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxChunkBytes
	}
	return &chunker{cfg: cfg}
}

// add consumes one raw line and returns a completed chunk, if any.
// forced reports that the chunk was flushed by a safety cap rather
// than a boundary.
func (c *chunker) add(line string) (out *chunk, forced bool) {
	switch {
	case c.cfg.Strategy.FixedLines > 0:
		c.append(line)
		if c.lines >= c.cfg.Strategy.FixedLines {
			return c.emit(), false
		}
	case c.cfg.Strategy.StartPattern != nil:
		if c.cfg.Strategy.StartPattern.MatchString(line) && c.lines > 0 {
			done := c.emit()
			c.append(line)
			return done, false
		}
		c.append(line)
	default:
		if strings.TrimSpace(line) == strings.TrimSpace(c.cfg.Strategy.Delimiter) {
			c.consumed++
			if c.lines > 0 {
				return c.emit(), false
			}
			return nil, false
		}
		c.append(line)
	}
	if c.lines >= c.cfg.MaxLines || c.buf.Len() >= c.cfg.MaxBytes {
		return c.emit(), true
	}
	return nil, false
}

// flush returns the trailing partial chunk, if any.
func (c *chunker) flush() *chunk {
	if c.lines == 0 {
		return nil
	}
	return c.emit()
}

func (c *chunker) append(line string) {
	if c.lines > 0 {
		c.buf.WriteByte('\n')
	}
	c.buf.WriteString(line)
	c.lines++
	c.consumed++
}

func (c *chunker) emit() *chunk {
	out := &chunk{content: c.buf.String(), lineCount: c.lines, consumed: c.consumed}
	c.buf.Reset()
	c.lines = 0
	c.consumed = 0
	return out
}

// ChunkDecoder aggregates raw input lines into multi-line text records
// per a chunk strategy. Implements Decoder.
type ChunkDecoder struct {
	scanner *bufio.Scanner
	chunker *chunker
	onForce func(lines int)
	done    bool
}

// NewChunkDecoder creates a chunking decoder over r. onForce, if not
// nil, is called whenever a safety cap forces a flush.
func NewChunkDecoder(r io.Reader, cfg ChunkConfig, onForce func(lines int)) *ChunkDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*(1<<20))
	return &ChunkDecoder{scanner: scanner, chunker: newChunker(cfg), onForce: onForce}
}

// Next returns the next chunk as a text record along with the number
// of raw lines it aggregated.
func (d *ChunkDecoder) Next() (*model.Record, int, error) {
	if d.done {
		return nil, 0, io.EOF
	}
	for d.scanner.Scan() {
		out, forced := d.chunker.add(d.scanner.Text())
		if out == nil {
			continue
		}
		if forced && d.onForce != nil {
			d.onForce(out.lineCount)
		}
		return model.NewText(out.content), out.consumed, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "unable to read input")
	}
	d.done = true
	if out := d.chunker.flush(); out != nil {
		return model.NewText(out.content), out.consumed, nil
	}
	return nil, 0, io.EOF
}
