package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML pipeline definition loaded via --pipeline.
// Command line flags win over file values; file stages run ahead of
// the inline ones.
type fileConfig struct {
	Window     int           `yaml:"window"`
	Begin      string        `yaml:"begin"`
	End        string        `yaml:"end"`
	Keys       []string      `yaml:"keys"`
	RemoveKeys []string      `yaml:"remove_keys"`
	Stages     []stageConfig `yaml:"stages"`
}

// stageConfig holds exactly one stage definition.
type stageConfig struct {
	Eval    string `yaml:"eval"`
	Filter  string `yaml:"filter"`
	Derive  string `yaml:"derive"`
	Extract string `yaml:"extract"`
}

func (c stageConfig) spec() (stageSpec, error) {
	var specs []stageSpec
	if c.Eval != "" {
		specs = append(specs, stageSpec{kind: stageEval, src: c.Eval})
	}
	if c.Filter != "" {
		specs = append(specs, stageSpec{kind: stageFilter, src: c.Filter})
	}
	if c.Derive != "" {
		specs = append(specs, stageSpec{kind: stageDerive, src: c.Derive})
	}
	if c.Extract != "" {
		specs = append(specs, stageSpec{kind: stageExtract, src: c.Extract})
	}
	if len(specs) != 1 {
		return stageSpec{}, errors.New("each stage needs exactly one of eval, filter, derive, extract")
	}
	return specs[0], nil
}

func loadConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pipeline file %q", path)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to parse pipeline file %q", path)
	}
	return &cfg, nil
}

// stageSpecs resolves the full stage list: the --pipeline file first,
// then the inline flags in command line order. The file also supplies
// defaults for window, begin, end and the key flags.
func (o *options) stageSpecs(argv []string) ([]stageSpec, error) {
	var specs []stageSpec
	if o.configPath != "" {
		cfg, err := loadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		for _, sc := range cfg.Stages {
			spec, specErr := sc.spec()
			if specErr != nil {
				return nil, specErr
			}
			specs = append(specs, spec)
		}
		if o.window == 0 {
			o.window = cfg.Window
		}
		if o.begin == "" {
			o.begin = cfg.Begin
		}
		if o.end == "" {
			o.end = cfg.End
		}
		if len(o.keys) == 0 {
			o.keys = cfg.Keys
		}
		if len(o.removeKeys) == 0 {
			o.removeKeys = cfg.RemoveKeys
		}
	}
	specs = append(specs, orderedSpecs(argv, o.evals, o.filters, o.derives, o.extractSpec)...)
	return specs, nil
}
