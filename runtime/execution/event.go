package execution

import "time"

// Event names recorded by the engine. Attempt events are the only entries
// produced on the happy path; the remaining names mark escalations, early
// completions and safety aborts so that operators can tell them apart at a
// glance.
const (
	EventExecutorAttempt = "executor.attempt"
	EventEscalated       = "workflow.escalated"
	EventHalted          = "workflow.halted"
	EventConditionUnmet  = "workflow.condition_unmet"
	EventCycleDetected   = "workflow.cycle_detected"
	EventAborted         = "workflow.aborted"
	EventSnapshotFailed  = "workflow.snapshot_failed"
)

// HistoryEvent is one append-only entry of the run history. Ordering is
// insertion order; entries are never mutated after being recorded.
type HistoryEvent struct {
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Time    time.Time              `json:"time"`
}
