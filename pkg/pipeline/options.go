package pipeline

import (
	"log/slog"

	"github.com/askiada/stelp/internal/store"
	"github.com/askiada/stelp/pkg/pipeline/measure"
)

// Option configures a pipeline at construction time.
type Option func(p *Pipeline)

// WithErrorStrategy sets the disposition of per-record errors.
// The default is Skip.
func WithErrorStrategy(strategy ErrorStrategy) Option {
	return func(p *Pipeline) {
		p.strategy = strategy
	}
}

// WithGlobals injects the global variable store. The default is a
// fresh empty store.
func WithGlobals(globals *store.Store) Option {
	return func(p *Pipeline) {
		p.globals = globals
	}
}

// WithLogger sets the diagnostic logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithDebug surfaces per-record skip-strategy errors on the logger.
func WithDebug(debug bool) Option {
	return func(p *Pipeline) {
		p.debug = debug
	}
}

// WithMeasure enables per-stage timing collection.
func WithMeasure() Option {
	return func(p *Pipeline) {
		p.measure = measure.New()
	}
}

// WithBegin sets a stage run once before the first source is opened.
func WithBegin(stage Stage) Option {
	return func(p *Pipeline) {
		p.begin = stage
	}
}

// WithEnd sets a stage run once after the last source's last record.
func WithEnd(stage Stage) Option {
	return func(p *Pipeline) {
		p.end = stage
	}
}

// WithExitMessageToStderr routes exit(code, message) messages to the
// diagnostic stream instead of the output sink.
func WithExitMessageToStderr() Option {
	return func(p *Pipeline) {
		p.exitMessageStderr = true
	}
}
