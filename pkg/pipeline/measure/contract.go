package measure

import "time"

// Measure collects per-stage timing for a run.
type Measure interface {
	// AddStage registers a stage and returns its metric.
	AddStage(name string) *Metric
	// Metric returns the metric for a registered stage, or nil.
	Metric(name string) *Metric
	// StageNames returns registered stages in registration order.
	StageNames() []string
	// TotalDuration returns wall time for the whole run once set.
	TotalDuration() time.Duration
	// SetTotalDuration records wall time for the whole run.
	SetTotalDuration(d time.Duration)
}
