// Package progress carries step progress from provisioning operations to
// whoever is watching them (CLI printer, tests).
package progress

import "sync"

const (
	// Indeterminate marks an event for a step that is running with no known fraction.
	Indeterminate = -1.0
	// Failed is reported when a step ends unsuccessfully.
	Failed = 0.0
	// Done is reported when a step completes.
	Done = 1.0
)

// Event is a single progress notification.
type Event struct {
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message"`
}

// Func receives progress events. It is called synchronously on the goroutine
// running the operation and must return quickly.
type Func func(fraction float64, message string)

// Report calls fn if it is non-nil.
func Report(fn Func, fraction float64, message string) {
	if fn != nil {
		fn(fraction, message)
	}
}

// Outcome reports Done or Failed depending on ok.
func Outcome(fn Func, ok bool, message string) {
	if ok {
		Report(fn, Done, message)
		return
	}
	Report(fn, Failed, message)
}

// Bytes converts a byte count into a fraction in [0,1). A download never
// reports 1 from byte counts alone; completion is reported once the archive
// has also been extracted. Unknown totals and an empty transfer are
// indeterminate, since 0 means Failed.
func Bytes(current, total int64) float64 {
	if total <= 0 || current <= 0 {
		return Indeterminate
	}
	f := float64(current) / float64(total)
	if f >= 1 {
		return 0.99
	}
	return f
}

// Recorder collects events in order. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Func returns a callback that appends to the recorder.
func (r *Recorder) Func() Func {
	return func(fraction float64, message string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, Event{Fraction: fraction, Message: message})
	}
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event, if any.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}
