package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/stelp/internal/levels"
	"github.com/askiada/stelp/internal/store"
	"github.com/askiada/stelp/pkg/extract"
	"github.com/askiada/stelp/pkg/format"
	"github.com/askiada/stelp/pkg/pipeline"
	"github.com/askiada/stelp/pkg/script"
)

type options struct {
	evals       []string
	filters     []string
	derives     []string
	extractSpec string
	scriptPath  string
	includes    []string
	configPath  string

	begin string
	end   string

	inputFormat  string
	outputFormat string
	plain        bool
	keys         []string
	removeKeys   []string

	chunkLines    int
	chunkStart    string
	chunkDelim    string
	chunkMaxLines int
	chunkMaxBytes int

	window        int
	levelsSpec    string
	excludeSpec   string
	levelmapTheme string

	output   string
	drawPath string

	failFast      bool
	debug         bool
	stats         bool
	exitMsgStderr bool
}

func (o *options) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&o.evals, "eval", "e", nil, "transform expression or script, applied in flag order")
	flags.StringArrayVar(&o.filters, "filter", nil, "keep records for which the expression is true")
	flags.StringArrayVarP(&o.derives, "derive", "d", nil, "assignments that become record fields")
	flags.StringVar(&o.extractSpec, "extract-vars", "", "extract fields from text via a {name:type} pattern")
	flags.StringVarP(&o.scriptPath, "script", "s", "", "transform script file, runs after the inline stages")
	flags.StringArrayVarP(&o.includes, "include", "I", nil, "script file whose definitions are shared by every stage")
	flags.StringVar(&o.configPath, "pipeline", "", "YAML pipeline definition file")

	flags.StringVar(&o.begin, "begin", "", "expression evaluated once before the first record")
	flags.StringVar(&o.end, "end", "", "expression evaluated once after the last record")

	flags.StringVarP(&o.inputFormat, "input-format", "f", "", "input format: line, jsonl, csv, tsv, logfmt, syslog, combined, fields (default: by extension)")
	flags.StringVarP(&o.outputFormat, "output-format", "F", "", "output format: jsonl, csv, tsv, logfmt, plain (default: jsonl)")
	flags.BoolVar(&o.plain, "plain", false, "shorthand for --output-format plain")
	flags.StringSliceVarP(&o.keys, "keys", "k", nil, "output keys, fixing the schema and its order")
	flags.StringSliceVarP(&o.removeKeys, "remove-keys", "K", nil, "keys stripped before output")

	flags.IntVar(&o.chunkLines, "chunk-lines", 0, "group every N lines into one record")
	flags.StringVar(&o.chunkStart, "chunk-start", "", "start a new record at lines matching this pattern")
	flags.StringVar(&o.chunkDelim, "chunk-delim", "", "end a record at lines equal to this delimiter")
	flags.IntVar(&o.chunkMaxLines, "chunk-max-lines", 0, "safety cap on lines per chunk")
	flags.IntVar(&o.chunkMaxBytes, "chunk-max-bytes", 0, "safety cap on bytes per chunk")

	flags.IntVar(&o.window, "window", 0, "expose the last N records to scripts as window")
	flags.StringVar(&o.levelsSpec, "levels", "", "keep only records at these log levels (comma separated)")
	flags.StringVar(&o.excludeSpec, "exclude-levels", "", "drop records at these log levels (comma separated)")
	flags.StringVar(&o.levelmapTheme, "levelmap", "", "colorize level tokens; value selects the theme")
	flags.Lookup("levelmap").NoOptDefVal = "default"

	flags.StringVarP(&o.output, "output", "o", "", "write output to this file instead of stdout")
	flags.StringVar(&o.drawPath, "draw", "", "write the stage plan as a DOT graph to this file")

	flags.BoolVar(&o.failFast, "fail-fast", false, "abort on the first record error instead of skipping")
	flags.BoolVar(&o.debug, "debug", false, "log skipped-record errors and internals")
	flags.BoolVar(&o.stats, "stats", false, "print run statistics to stderr")
	flags.BoolVar(&o.exitMsgStderr, "exit-message-stderr", false, "print exit() messages to stderr instead of the output")
}

func (o *options) run(ctx context.Context, files, argv []string) (int, error) {
	logger := o.newLogger()

	specs, err := o.stageSpecs(argv)
	if err != nil {
		return 1, err
	}

	globals := store.New()
	var rtOpts []script.RuntimeOption
	if o.window > 0 {
		rtOpts = append(rtOpts, script.WithWindow(o.window))
	}
	rt := script.NewRuntime(globals, rtOpts...)
	for _, path := range o.includes {
		src, readErr := os.ReadFile(path)
		if readErr != nil {
			return 1, errors.Wrapf(readErr, "unable to read include %q", path)
		}
		if err := rt.LoadInclude(path, string(src)); err != nil {
			return 1, err
		}
	}

	out, closeOut, err := o.openOutput()
	if err != nil {
		return 1, err
	}
	defer closeOut()

	outFormat, err := o.resolveOutputFormat()
	if err != nil {
		return 1, err
	}
	sink := format.NewWriter(out, outFormat, format.NewReconciler(o.keys, o.removeKeys, logger))

	p, err := o.buildPipeline(sink, globals, rt, logger)
	if err != nil {
		return 1, err
	}
	if err := o.addStages(p, rt, specs); err != nil {
		return 1, err
	}

	sources, closeSources, err := o.buildSources(files, logger)
	if err != nil {
		return 1, err
	}
	defer closeSources()

	runErr := p.Run(ctx, sources...)

	if o.stats {
		renderStats(os.Stderr, p.Stats(), p.Measure())
	}
	if o.drawPath != "" {
		if err := p.DrawPlan(o.drawPath); err != nil {
			logger.Warn("unable to draw plan", "err", err.Error())
		}
	}
	if runErr != nil {
		return 1, runErr
	}
	return p.ExitCode(), nil
}

func (o *options) newLogger() *slog.Logger {
	level := slog.LevelWarn
	if o.debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run_id", uuid.NewString())
}

func (o *options) buildPipeline(sink pipeline.Writer, globals *store.Store, rt *script.Runtime, logger *slog.Logger) (*pipeline.Pipeline, error) {
	pOpts := []pipeline.Option{
		pipeline.WithGlobals(globals),
		pipeline.WithLogger(logger),
		pipeline.WithDebug(o.debug),
	}
	if o.failFast {
		pOpts = append(pOpts, pipeline.WithErrorStrategy(pipeline.FailFast))
	}
	if o.stats || o.drawPath != "" {
		pOpts = append(pOpts, pipeline.WithMeasure())
	}
	if o.exitMsgStderr {
		pOpts = append(pOpts, pipeline.WithExitMessageToStderr())
	}
	if o.begin != "" {
		stage, err := script.NewTransform("begin", o.begin, rt)
		if err != nil {
			return nil, err
		}
		pOpts = append(pOpts, pipeline.WithBegin(stage))
	}
	if o.end != "" {
		stage, err := script.NewTransform("end", o.end, rt)
		if err != nil {
			return nil, err
		}
		pOpts = append(pOpts, pipeline.WithEnd(stage))
	}
	return pipeline.New(sink, pOpts...)
}

// addStages assembles the stage sequence: level gate, window capture,
// the user stages in flag order, the script file and the level
// colorizer.
func (o *options) addStages(p *pipeline.Pipeline, rt *script.Runtime, specs []stageSpec) error {
	if o.levelsSpec != "" || o.excludeSpec != "" {
		include, exclude, err := o.parseLevelLists()
		if err != nil {
			return err
		}
		if err := p.AddStage(levels.NewGate("levels", include, exclude)); err != nil {
			return err
		}
	}
	if o.window > 0 {
		if err := p.AddStage(script.NewWindowStage("window", rt)); err != nil {
			return err
		}
	}
	for i, spec := range specs {
		stage, err := buildStage(spec, i+1, rt)
		if err != nil {
			return err
		}
		if err := p.AddStage(stage); err != nil {
			return err
		}
	}
	if o.scriptPath != "" {
		src, err := os.ReadFile(o.scriptPath)
		if err != nil {
			return errors.Wrapf(err, "unable to read script %q", o.scriptPath)
		}
		stage, err := script.NewTransform("script", string(src), rt)
		if err != nil {
			return err
		}
		if err := p.AddStage(stage); err != nil {
			return err
		}
	}
	if o.levelmapTheme != "" {
		stage, err := levels.NewColormap("levelmap", o.levelmapTheme)
		if err != nil {
			return err
		}
		if err := p.AddStage(stage); err != nil {
			return err
		}
	}
	return nil
}

func buildStage(spec stageSpec, index int, rt *script.Runtime) (pipeline.Stage, error) {
	name := fmt.Sprintf("%s_%d", spec.kind, index)
	switch spec.kind {
	case stageEval:
		return script.NewTransform(name, spec.src, rt)
	case stageFilter:
		return script.NewFilter(name, spec.src, rt)
	case stageDerive:
		return script.NewDerive(name, spec.src, rt)
	case stageExtract:
		return extract.New(name, spec.src)
	default:
		return nil, errors.Errorf("unknown stage kind %q", spec.kind)
	}
}

func (o *options) parseLevelLists() (include, exclude []levels.Level, err error) {
	if o.levelsSpec != "" {
		parsed, ok := levels.ParseList(o.levelsSpec)
		if !ok {
			return nil, nil, errors.Errorf("invalid --levels %q", o.levelsSpec)
		}
		include = parsed
	}
	if o.excludeSpec != "" {
		parsed, ok := levels.ParseList(o.excludeSpec)
		if !ok {
			return nil, nil, errors.Errorf("invalid --exclude-levels %q", o.excludeSpec)
		}
		exclude = parsed
	}
	return include, exclude, nil
}

func (o *options) resolveOutputFormat() (format.OutputFormat, error) {
	if o.plain {
		return format.OutputPlain, nil
	}
	return format.ParseOutput(o.outputFormat)
}

func (o *options) openOutput() (io.Writer, func(), error) {
	if o.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(o.output)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to create output %q", o.output)
	}
	return f, func() { f.Close() }, nil
}

func (o *options) chunkConfig() (*pipeline.ChunkConfig, error) {
	set := 0
	cfg := pipeline.ChunkConfig{
		MaxLines: o.chunkMaxLines,
		MaxBytes: o.chunkMaxBytes,
	}
	if o.chunkLines > 0 {
		cfg.Strategy.FixedLines = o.chunkLines
		set++
	}
	if o.chunkStart != "" {
		re, err := regexp.Compile(o.chunkStart)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid --chunk-start %q", o.chunkStart)
		}
		cfg.Strategy.StartPattern = re
		set++
	}
	if o.chunkDelim != "" {
		cfg.Strategy.Delimiter = o.chunkDelim
		set++
	}
	if set == 0 {
		return nil, nil
	}
	if set > 1 {
		return nil, errors.New("at most one of --chunk-lines, --chunk-start and --chunk-delim may be set")
	}
	return &cfg, nil
}

func (o *options) buildSources(files []string, logger *slog.Logger) ([]pipeline.Source, func(), error) {
	chunkCfg, err := o.chunkConfig()
	if err != nil {
		return nil, nil, err
	}
	onForce := func(lines int) {
		logger.Warn("chunk flushed at safety cap", "lines", lines)
	}

	decoderFor := func(r io.Reader, path string) (pipeline.Decoder, error) {
		if chunkCfg != nil {
			return pipeline.NewChunkDecoder(r, *chunkCfg, onForce), nil
		}
		var inFormat format.InputFormat
		if o.inputFormat != "" {
			parsed, parseErr := format.ParseInput(o.inputFormat)
			if parseErr != nil {
				return nil, parseErr
			}
			inFormat = parsed
		} else {
			inFormat = format.DetectInput(path)
		}
		return format.NewDecoder(inFormat, r), nil
	}

	if len(files) == 0 {
		dec, err := decoderFor(os.Stdin, "")
		if err != nil {
			return nil, nil, err
		}
		return []pipeline.Source{{Decoder: dec}}, func() {}, nil
	}

	var (
		sources []pipeline.Source
		opened  []*os.File
	)
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for _, path := range files {
		f, openErr := os.Open(path)
		if openErr != nil {
			closeAll()
			return nil, nil, errors.Wrapf(openErr, "unable to open %q", path)
		}
		opened = append(opened, f)
		dec, decErr := decoderFor(f, path)
		if decErr != nil {
			closeAll()
			return nil, nil, decErr
		}
		sources = append(sources, pipeline.Source{Name: path, Decoder: dec})
	}
	return sources, closeAll, nil
}
