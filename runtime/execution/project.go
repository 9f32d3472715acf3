package execution

// ProjectState tracks the single unit of work a run drives through the
// workflow. It is private to the engine's control loop and needs no
// synchronisation beyond it; parallel branches publish into the Session and
// the engine folds their output back into the payload sequentially.
type ProjectState struct {
	// State is the current state name.
	State string `json:"state"`
	// Iterations counts engine loop iterations; it only ever grows.
	Iterations int `json:"iterations"`
	// Visited lists entered state names in order. Cycle detection inspects
	// only a bounded window at the tail.
	Visited []string `json:"visited,omitempty"`
	// Payload is the free-form project data merged from executor outputs.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewProjectState creates the per-run project state positioned at the
// workflow entry state.
func NewProjectState(entryState string, payload map[string]interface{}) *ProjectState {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &ProjectState{
		State:   entryState,
		Visited: []string{entryState},
		Payload: payload,
	}
}

// Enter advances the project to the given state and records the visit.
func (p *ProjectState) Enter(state string) {
	p.State = state
	p.Visited = append(p.Visited, state)
}

// MergePayload folds executor output into the project payload. Nested maps
// are merged recursively; everything else is last-write-wins.
func (p *ProjectState) MergePayload(updates map[string]interface{}) {
	mergeMaps(p.Payload, updates)
}

func mergeMaps(target, source map[string]interface{}) {
	for key, value := range source {
		if nested, ok := value.(map[string]interface{}); ok {
			if existing, ok := target[key].(map[string]interface{}); ok {
				mergeMaps(existing, nested)
				continue
			}
		}
		target[key] = value
	}
}

// HasCycle reports whether the tail of the visited list repeats a short
// pattern: the last window entries split into two identical halves
// (e.g. B,C,B,C with window 4). Only the bounded window is inspected.
func (p *ProjectState) HasCycle(window int) bool {
	if window < 2 {
		return false
	}
	pattern := window / 2
	n := len(p.Visited)
	if n < window || pattern == 0 {
		return false
	}
	for i := 0; i < pattern; i++ {
		if p.Visited[n-window+i] != p.Visited[n-pattern+i] {
			return false
		}
	}
	return true
}
