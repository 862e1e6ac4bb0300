package levels

import (
	"github.com/askiada/stelp/pkg/pipeline/model"
)

// Gate drops records by severity. With an include set only records
// carrying one of those levels pass, and records with no detectable
// level are dropped too. With an exclude set only records carrying an
// excluded level are dropped.
type Gate struct {
	name    string
	include map[Level]struct{}
	exclude map[Level]struct{}
}

// NewGate builds a gate stage. At most one of include and exclude
// should be non-empty; when both are set, include wins.
func NewGate(name string, include, exclude []Level) *Gate {
	g := &Gate{name: name}
	if len(include) > 0 {
		g.include = make(map[Level]struct{}, len(include))
		for _, l := range include {
			g.include[l] = struct{}{}
		}
		return g
	}
	if len(exclude) > 0 {
		g.exclude = make(map[Level]struct{}, len(exclude))
		for _, l := range exclude {
			g.exclude[l] = struct{}{}
		}
	}
	return g
}

// Name implements pipeline.Stage.
func (g *Gate) Name() string { return g.name }

// Reset implements pipeline.Stage.
func (g *Gate) Reset() {}

// Process implements pipeline.Stage.
func (g *Gate) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	level, found := Detect(rec)
	if g.include != nil {
		if !found {
			return model.Drop()
		}
		if _, ok := g.include[level]; !ok {
			return model.Drop()
		}
		return model.Continue(rec)
	}
	if g.exclude != nil && found {
		if _, ok := g.exclude[level]; ok {
			return model.Drop()
		}
	}
	return model.Continue(rec)
}
