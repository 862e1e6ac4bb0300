package pipeline

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

const (
	planSourceVertex = "source"
	planSinkVertex   = "sink"
)

// plan tracks the declared stage sequence as a directed graph. It
// rejects duplicate stage names and yields the linear source → stages
// → sink chain consumed by the drawer.
type plan struct {
	graph graph.Graph[string, string]
	tail  string
}

func newPlan() (*plan, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	if err := g.AddVertex(planSourceVertex); err != nil {
		return nil, errors.Wrap(err, "unable to add source vertex")
	}
	return &plan{graph: g, tail: planSourceVertex}, nil
}

func (pl *plan) addStage(name string) error {
	if err := pl.graph.AddVertex(name); err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return errors.Wrapf(err, "duplicate stage name %q", name)
		}
		return errors.Wrapf(err, "unable to add stage %q", name)
	}
	if err := pl.graph.AddEdge(pl.tail, name); err != nil {
		return errors.Wrapf(err, "unable to link %q to %q", pl.tail, name)
	}
	pl.tail = name
	return nil
}

func (pl *plan) seal() error {
	if err := pl.graph.AddVertex(planSinkVertex); err != nil {
		return errors.Wrap(err, "unable to add sink vertex")
	}
	if err := pl.graph.AddEdge(pl.tail, planSinkVertex); err != nil {
		return errors.Wrap(err, "unable to link final stage to sink")
	}
	return nil
}

// stageNames returns declared stage names in order by walking the
// linear chain from the source vertex.
func (pl *plan) stageNames() ([]string, error) {
	adjacency, err := pl.graph.AdjacencyMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get adjacency map")
	}
	var names []string
	current := planSourceVertex
	for {
		next, ok := adjacency[current]
		if !ok || len(next) == 0 {
			return names, nil
		}
		for target := range next {
			current = target
		}
		if current == planSinkVertex {
			return names, nil
		}
		names = append(names, current)
	}
}
