package execution

// Terminal state names every workflow shares. A run that reaches any other
// terminal declared by its definition still reports COMPLETED.
const (
	// StateCompleted is the terminal state of a run that finished normally.
	StateCompleted = "COMPLETED"
	// StateError is the terminal state of a run aborted by a permanent
	// failure or a safety guard.
	StateError = "ERROR"
)

// IsTerminal reports whether the supplied state name ends the run.
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateError
}
