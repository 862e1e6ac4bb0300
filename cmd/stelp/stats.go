package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/askiada/stelp/pkg/pipeline"
	"github.com/askiada/stelp/pkg/pipeline/measure"
)

// renderStats prints the run counters and, when measuring is on, the
// per-stage timing table.
func renderStats(w io.Writer, stats pipeline.Stats, msr measure.Measure) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"records read", stats.RecordsRead},
		{"records written", stats.RecordsWritten},
		{"records skipped", stats.RecordsSkipped},
		{"errors", stats.Errors},
		{"elapsed", stats.Elapsed.String()},
	})
	t.Render()

	if msr == nil {
		return
	}
	st := table.NewWriter()
	st.SetOutputMirror(w)
	st.SetStyle(table.StyleLight)
	st.AppendHeader(table.Row{"Stage", "Records", "Total", "Avg"})
	for _, name := range msr.StageNames() {
		metric := msr.Metric(name)
		if metric == nil {
			continue
		}
		st.AppendRow(table.Row{name, metric.Count(), metric.TotalElapsed().String(), metric.AVGDuration().String()})
	}
	st.Render()
}
