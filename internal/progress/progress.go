// Package progress delivers (message, percent) updates from a running flow
// to whatever observer the caller installed.
package progress

import (
	"sync"
	"time"

	"github.com/ShayCichocki/modernity/pkg/models"
)

// Event is a single progress notification.
type Event = models.ProgressEvent

// Sink receives progress events. Implementations need not be thread-safe:
// the Reporter serializes every call.
type Sink interface {
	OnProgress(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// OnProgress calls f.
func (f SinkFunc) OnProgress(e Event) {
	f(e)
}

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

// Reporter owns the installed sink and serializes delivery to it.
// A nil *Reporter is valid and discards everything.
type Reporter struct {
	mu   sync.Mutex
	sink Sink
	now  func() time.Time
}

// NewReporter creates a reporter delivering to sink. A nil sink means Nop.
func NewReporter(sink Sink) *Reporter {
	if sink == nil {
		sink = Nop
	}
	return &Reporter{sink: sink, now: time.Now}
}

// Install replaces the sink and returns a function restoring the previous one.
func (r *Reporter) Install(sink Sink) (restore func()) {
	if sink == nil {
		sink = Nop
	}
	r.mu.Lock()
	prev := r.sink
	r.sink = sink
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.sink = prev
		r.mu.Unlock()
	}
}

// Emit delivers one event. A panicking sink is contained so that progress
// reporting can never break a flow.
func (r *Reporter) Emit(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	defer func() { _ = recover() }()
	r.sink.OnProgress(e)
}

// Start opens a per-run tracker bound to runID.
func (r *Reporter) Start(runID string) *Run {
	return &Run{reporter: r, runID: runID}
}

// Run tracks progress for one flow run. Percentages never go backwards
// within a run and are clamped to [0, 100]. Safe for concurrent use.
type Run struct {
	reporter *Reporter
	runID    string

	mu   sync.Mutex
	last int
}

// Report emits message at percent, raised to the last reported value if lower.
func (r *Run) Report(message string, percent int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	percent = min(max(percent, 0), 100)
	if percent < r.last {
		percent = r.last
	}
	r.last = percent

	r.reporter.Emit(Event{RunID: r.runID, Message: message, Percent: percent})
}

// Percent returns the last reported percentage.
func (r *Run) Percent() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
