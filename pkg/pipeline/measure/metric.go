package measure

import "time"

// Metric accumulates invocation timing for one stage. The pipeline is
// single-threaded, so no locking is done here.
type Metric struct {
	total   int64
	elapsed time.Duration
}

// Add records one stage invocation.
func (m *Metric) Add(elapsed time.Duration) {
	m.total++
	m.elapsed += elapsed
}

// Count returns the number of invocations.
func (m *Metric) Count() int64 { return m.total }

// TotalElapsed returns the summed invocation time.
func (m *Metric) TotalElapsed() time.Duration { return m.elapsed }

// AVGDuration returns the rounded mean invocation time.
func (m *Metric) AVGDuration() time.Duration {
	if m.total == 0 {
		return 0
	}
	return round(time.Duration(float64(m.elapsed) / float64(m.total)))
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		d = d.Round(time.Second)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}
	return d
}
