package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BadgerOps/pyboot/internal/progress"
	"github.com/BadgerOps/pyboot/internal/safety"
)

// Selector probes candidate sources and picks the one with the lowest latency.
type Selector struct {
	prober Prober
	logger *slog.Logger
	// Workers bounds concurrent probes. 1 probes strictly one at a time.
	Workers int
}

// NewSelector creates a sequential selector.
func NewSelector(prober Prober, logger *slog.Logger) *Selector {
	return &Selector{prober: prober, logger: logger, Workers: 1}
}

// ChooseBest probes every source, reports each result as it completes,
// passes the fastest to apply and returns it with all results sorted by
// latency. Equal latencies keep the order of sources.
func (s *Selector) ChooseBest(ctx context.Context, name string, sources []Source, apply func(Source) error, fn progress.Func) (Choice, []ProbeResult, error) {
	msg := fmt.Sprintf("testing %s speed...", name)
	progress.Report(fn, progress.Indeterminate, msg)
	s.logger.Info(msg, "sources", len(sources))

	if len(sources) == 0 {
		msg := fmt.Sprintf("no %s to test", name)
		s.logger.Warn(msg)
		progress.Report(fn, progress.Indeterminate, msg)
		return Choice{}, nil, ErrNoSources
	}

	results := s.probeAll(ctx, sources, fn)
	if len(results) == 0 {
		msg := fmt.Sprintf("%s speed test failed", name)
		s.logger.Warn(msg)
		progress.Report(fn, progress.Indeterminate, msg)
		return Choice{}, nil, ErrNoResults
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LatencyMs < results[j].LatencyMs
	})

	best := results[0]
	msg = fmt.Sprintf("selected %s %s", name, best.Source.Label)
	s.logger.Info(msg, "url", best.Source.URL, "latency_ms", best.LatencyMs)
	progress.Report(fn, progress.Indeterminate, msg)

	if apply != nil {
		if err := apply(best.Source); err != nil {
			return Choice{}, results, fmt.Errorf("saving selected %s: %w", name, err)
		}
	}

	return Choice{
		Label:     best.Source.Label,
		URL:       best.Source.URL,
		LatencyMs: best.LatencyMs,
	}, results, nil
}

// probeAll returns one result per source in source order.
func (s *Selector) probeAll(ctx context.Context, sources []Source, fn progress.Func) []ProbeResult {
	results := make([]ProbeResult, len(sources))

	var reportMu sync.Mutex
	report := func(r ProbeResult) {
		reportMu.Lock()
		defer reportMu.Unlock()
		line := fmt.Sprintf("%s took %dms", r.Source.Label, r.LatencyMs)
		s.logger.Info(line, "url", r.Source.URL)
		progress.Report(fn, progress.Indeterminate, line)
	}

	if s.Workers <= 1 {
		for i, src := range sources {
			results[i] = s.probeOne(ctx, src)
			report(results[i])
		}
		return results
	}

	sem := make(chan struct{}, s.Workers)
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, src Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = s.probeOne(ctx, src)
			report(results[idx])
		}(i, src)
	}
	wg.Wait()
	return results
}

func (s *Selector) probeOne(ctx context.Context, src Source) ProbeResult {
	host, err := safety.ProbeHost(src.URL)
	if err != nil {
		s.logger.Warn("skipping probe for invalid source URL", "label", src.Label, "url", src.URL, "error", err)
		return ProbeResult{Source: src, LatencyMs: SentinelLatencyMs}
	}
	return ProbeResult{Source: src, LatencyMs: s.prober.Probe(ctx, host)}
}
