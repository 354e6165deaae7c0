package store

import "time"

// Run records one provisioning or selection operation
type Run struct {
	ID         string // uuid
	Operation  string // "install-uv", "sync", "select-package-index", ...
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Success    bool
	Message    string
}

// Finished reports whether the run has completed
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Duration is the wall-clock time of a finished run
func (r *Run) Duration() time.Duration {
	if !r.Finished() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProbeRecord is one measured source latency
type ProbeRecord struct {
	ID         int64
	RunID      string
	Category   string
	Label      string
	URL        string
	LatencyMs  int
	Selected   bool
	RecordedAt time.Time
}
