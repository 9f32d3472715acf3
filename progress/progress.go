package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the engine. The
// fields are signed and therefore can be either positive (increment) or
// negative (decrement).
type Delta struct {
	Steps     int
	Completed int
	Skipped   int
	Failed    int
	Retried   int
	Escalated int
}

// Snapshot is a point-in-time copy of the tracker counters, safe to read
// and pass around freely.
type Snapshot struct {
	RunID     string
	Workflow  string
	StartedAt time.Time

	Steps          int
	CompletedSteps int
	SkippedSteps   int
	FailedSteps    int
	RetriedSteps   int
	Escalations    int
}

// Progress keeps aggregated step counters for a workflow run, escalation
// targets included. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	snapshot Snapshot
	onChange func(Snapshot)
}

// New creates a tracker for the given run.
func New(runID, workflow string) *Progress {
	return &Progress{
		snapshot: Snapshot{
			RunID:     runID,
			Workflow:  workflow,
			StartedAt: time.Now(),
		},
	}
}

// Update applies the supplied delta to the tracker. It is safe to call from
// multiple goroutines. A registered onChange callback is invoked with a copy
// of the updated counters outside the critical section, so the callback can
// perform slow operations without blocking engine internals.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.mu.Lock()

	p.snapshot.Steps += d.Steps
	p.snapshot.CompletedSteps += d.Completed
	p.snapshot.SkippedSteps += d.Skipped
	p.snapshot.FailedSteps += d.Failed
	p.snapshot.RetriedSteps += d.Retried
	p.snapshot.Escalations += d.Escalated

	snapshot := p.snapshot
	cb := p.onChange

	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker counters.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// OnChange registers a callback that is invoked after every Update. Passing
// nil disables the callback. Only one callback can be active; subsequent
// calls overwrite the previous value.
func (p *Progress) OnChange(cb func(Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a new Progress tracker, embeds it in a derived
// context and returns both. The caller may optionally pass an onChange
// callback that will be invoked after every counter update.
func WithNewTracker(ctx context.Context, runID, workflow string, onChange func(Snapshot)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := New(runID, workflow)
	tr.onChange = onChange
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the Progress tracker from ctx. The second return
// value is false when the context carries no tracker.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// GetSnapshot combines FromContext and Snapshot. The boolean return value is
// false when the context does not carry a tracker.
func GetSnapshot(ctx context.Context) (Snapshot, bool) {
	if tr, ok := FromContext(ctx); ok {
		return tr.Snapshot(), true
	}
	return Snapshot{}, false
}

// UpdateCtx looks up the tracker in ctx (if any) and applies the supplied
// delta.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
