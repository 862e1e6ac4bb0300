package pipeline

import "time"

// Stats accumulates run counters. The orchestrator owns them; stages
// never touch them directly. The counters see decoded records only:
// in line input a blank line decodes to an empty record and is counted
// read and skipped, while structured decoders swallow blank separator
// lines before a record exists, so those appear in no counter.
type Stats struct {
	RecordsRead    int64
	RecordsWritten int64
	RecordsSkipped int64
	Errors         int64
	Elapsed        time.Duration
}

// Merge adds other into s.
func (s *Stats) Merge(other Stats) {
	s.RecordsRead += other.RecordsRead
	s.RecordsWritten += other.RecordsWritten
	s.RecordsSkipped += other.RecordsSkipped
	s.Errors += other.Errors
	s.Elapsed += other.Elapsed
}
