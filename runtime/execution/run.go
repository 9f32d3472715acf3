package execution

import "time"

// Run is the persistable record of one workflow run: the terminal outcome
// plus the final context snapshot and history. The engine saves one per run
// when a snapshot store is configured.
type Run struct {
	ID         string                 `json:"id"`
	Workflow   string                 `json:"workflow"`
	State      string                 `json:"state"`
	Iterations int                    `json:"iterations"`
	Visited    []string               `json:"visited,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	History    []HistoryEvent         `json:"history,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	EndedAt    time.Time              `json:"endedAt"`
	Error      string                 `json:"error,omitempty"`
}

// Completed reports whether the run reached the COMPLETED terminal state.
func (r *Run) Completed() bool {
	return r.State == StateCompleted
}

// CopyFrom replaces the receiver's content with src, keeping the receiver
// pointer stable for stores that hand out references.
func (r *Run) CopyFrom(src *Run) {
	if src == nil {
		return
	}
	*r = *src
}
