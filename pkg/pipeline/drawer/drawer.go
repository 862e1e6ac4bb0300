// Package drawer renders the configured stage plan as a DOT graph,
// optionally heat-colored by measured stage time.
package drawer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	colors "gopkg.in/go-playground/colors.v1"

	"github.com/askiada/stelp/pkg/pipeline/measure"
)

// Drawer accumulates the stage graph and writes it out as DOT.
type Drawer struct {
	graph    graph.Graph[string, string]
	fileName string
}

// New creates a drawer writing to fileName.
func New(fileName string) *Drawer {
	return &Drawer{
		fileName: fileName,
		graph:    graph.New(graph.StringHash, graph.Directed()),
	}
}

// AddStage adds a stage vertex to the plan graph.
func (d *Drawer) AddStage(name string) error {
	if err := d.graph.AddVertex(name); err != nil {
		return errors.Wrap(err, "unable to add vertex")
	}
	return nil
}

// AddLink adds an edge between consecutive stages.
func (d *Drawer) AddLink(parentName, childName string) error {
	if err := d.graph.AddEdge(parentName, childName); err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}
	return nil
}

const maxRGB = 240

// AddMeasure colors each stage vertex on a blue-to-red scale by its
// average invocation time and labels it with the rounded value.
func (d *Drawer) AddMeasure(msr measure.Measure) error {
	averages := make(map[string]time.Duration)
	sorted := []time.Duration{}
	for _, name := range msr.StageNames() {
		avg := msr.Metric(name).AVGDuration()
		averages[name] = avg
		sorted = append(sorted, avg)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	maxValue, minValue := sorted[0], sorted[len(sorted)-1]

	for name, avg := range averages {
		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(avg-minValue) / float64(maxValue-minValue)
		}
		heat, err := colors.RGB(uint8(maxRGB*fraction), 0, uint8(maxRGB-maxRGB*fraction))
		if err != nil {
			return errors.Wrap(err, "unable to build colour")
		}
		_, properties, err := d.graph.VertexWithProperties(name)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}
		properties.Attributes["color"] = heat.ToHEX().String()
		if avg != 0 {
			properties.Attributes["xlabel"] = avg.String()
		}
	}
	return nil
}

// Draw writes the DOT file.
func (d *Drawer) Draw() error {
	file, err := os.Create(d.fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.fileName)
	}
	defer file.Close()
	if err := dot(d.graph, file); err != nil {
		return errors.Wrapf(err, "unable to render dot file %s", d.fileName)
	}
	return nil
}

const dotTemplate = `strict {{.GraphType}} {
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}"{{else}}[ {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           string
	Target           string
	SourceAttributes map[string]string
}

func dot[K comparable, T any](g graph.Graph[K, T], w io.Writer) error {
	desc := description{GraphType: "graph", EdgeOperator: "--"}
	if g.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := g.AdjacencyMap()
	if err != nil {
		return errors.Wrap(err, "unable to get adjacency map")
	}
	for vertex, adjacencies := range adjacencyMap {
		_, properties, err := g.VertexWithProperties(vertex)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}
		desc.Statements = append(desc.Statements, statement{
			Source:           fmt.Sprint(vertex),
			SourceAttributes: properties.Attributes,
		})
		for adjacency := range adjacencies {
			desc.Statements = append(desc.Statements, statement{
				Source: fmt.Sprint(vertex),
				Target: fmt.Sprint(adjacency),
			})
		}
	}
	sort.Slice(desc.Statements, func(i, j int) bool {
		if desc.Statements[i].Source != desc.Statements[j].Source {
			return desc.Statements[i].Source < desc.Statements[j].Source
		}
		return desc.Statements[i].Target < desc.Statements[j].Target
	})

	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "unable to parse template")
	}
	return tpl.Execute(w, desc)
}
