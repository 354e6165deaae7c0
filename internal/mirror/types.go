package mirror

import "errors"

// SentinelLatencyMs is recorded for probes that failed or took too long, so
// they always sort after any reachable mirror.
const SentinelLatencyMs = 9999

// slowProbeThresholdMs is the cutoff at or above which a probe counts as failed.
const slowProbeThresholdMs = 3000

var (
	// ErrNoSources is returned when a category has no candidates to probe.
	ErrNoSources = errors.New("no sources to test")
	// ErrNoResults is returned when probing produced nothing to choose from.
	ErrNoResults = errors.New("speed test produced no results")
)

// Category groups mirror sources that are interchangeable.
type Category string

const (
	CategoryPackageIndex Category = "package-index"
	CategoryInterpreter  Category = "interpreter"
)

// Source is a candidate mirror.
type Source struct {
	Label    string   `json:"label"`
	URL      string   `json:"url"`
	Category Category `json:"category"`
}

// ProbeResult is the measured latency of one source in one selection run.
type ProbeResult struct {
	Source    Source `json:"source"`
	LatencyMs int    `json:"latency_ms"`
}

// Failed reports whether the probe ended at the sentinel latency.
func (r ProbeResult) Failed() bool {
	return r.LatencyMs >= SentinelLatencyMs
}

// Choice is the winner of a selection run.
type Choice struct {
	Label     string `json:"label"`
	URL       string `json:"url"`
	LatencyMs int    `json:"latency_ms"`
}
