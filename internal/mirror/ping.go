package mirror

import (
	"context"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/BadgerOps/pyboot/internal/runner"
)

// latencyPattern matches the per-reply round trip in ping output across
// platforms: "time=45ms", "time<1ms", "time=45.3 ms" and localized
// variants such as "时间=45ms". The summary lines ("time 0ms",
// "= 45.3/45.3/45.3/0.000 ms") do not match.
var latencyPattern = regexp.MustCompile(`[=<]\s*(\d+(?:\.\d+)?)\s*ms`)

// Prober measures the round-trip latency to a host in milliseconds.
// Failures are reported as SentinelLatencyMs, never as an error.
type Prober interface {
	Probe(ctx context.Context, host string) int
}

// PingProber probes with the system ping tool: one packet, one second timeout.
type PingProber struct {
	runner runner.Runner
	goos   string
	now    func() time.Time
}

// NewPingProber creates a prober for the host platform.
func NewPingProber(r runner.Runner) *PingProber {
	return &PingProber{runner: r, goos: runtime.GOOS, now: time.Now}
}

// PingArgs returns the single-packet, 1000ms-timeout ping arguments for goos.
func PingArgs(goos, host string) []string {
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", "1000", host}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", "1", "-t", "1", host}
	default:
		return []string{"-c", "1", "-W", "1", host}
	}
}

// Probe pings host once. The latency printed by ping is preferred; when it
// cannot be parsed the wall-clock time of the command is used instead.
func (p *PingProber) Probe(ctx context.Context, host string) int {
	start := p.now()
	out, err := p.runner.Run(ctx, runner.Command{Name: "ping", Args: PingArgs(p.goos, host)})
	elapsed := p.now().Sub(start)
	return latencyFromOutput(out, err, elapsed)
}

// ParseLatency extracts the first reply latency from ping output, rounded
// to whole milliseconds.
func ParseLatency(output string) (int, bool) {
	m := latencyPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(v)), true
}

func latencyFromOutput(output string, err error, elapsed time.Duration) int {
	if err != nil {
		return SentinelLatencyMs
	}
	if ms, ok := ParseLatency(output); ok {
		return capLatency(ms)
	}
	return capLatency(int(elapsed.Milliseconds()))
}

func capLatency(ms int) int {
	if ms < 0 || ms >= slowProbeThresholdMs {
		return SentinelLatencyMs
	}
	return ms
}
