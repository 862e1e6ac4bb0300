// Package measure collects per-stage timing metrics for a pipeline
// run, consumed by the stats report and the plan drawer.
package measure

import "time"

type defaultMeasure struct {
	order  []string
	stages map[string]*Metric
	total  time.Duration
}

// New creates an empty measure.
func New() Measure {
	return &defaultMeasure{stages: make(map[string]*Metric)}
}

func (m *defaultMeasure) AddStage(name string) *Metric {
	if mt, ok := m.stages[name]; ok {
		return mt
	}
	mt := &Metric{}
	m.stages[name] = mt
	m.order = append(m.order, name)
	return mt
}

func (m *defaultMeasure) Metric(name string) *Metric {
	return m.stages[name]
}

func (m *defaultMeasure) StageNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *defaultMeasure) TotalDuration() time.Duration { return m.total }

func (m *defaultMeasure) SetTotalDuration(d time.Duration) { m.total = d }
