package types

import "context"

// Status describes the outcome of a single executor invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Result is the value an executor hands back to the engine. Data is merged
// into the shared context and the project payload; NextState, when set,
// overrides the computed transition.
type Result struct {
	Status    Status                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	NextState string                 `json:"nextState,omitempty"`
	Message   string                 `json:"message,omitempty"`

	// Output carries an optional typed value produced by the executor. The
	// router converts it into Data entries before the result reaches the
	// engine, so engine code only ever deals with maps.
	Output interface{} `json:"-"`
}

// Executor is the single capability the orchestrator consumes from
// externally supplied work units. Implementations are registered explicitly
// at startup; the engine has no knowledge of what an executor does
// internally.
type Executor interface {
	Name() string
	Execute(ctx context.Context, snapshot map[string]interface{}) (*Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc struct {
	ExecutorName string
	Fn           func(ctx context.Context, snapshot map[string]interface{}) (*Result, error)
}

func (e *ExecutorFunc) Name() string { return e.ExecutorName }

func (e *ExecutorFunc) Execute(ctx context.Context, snapshot map[string]interface{}) (*Result, error) {
	return e.Fn(ctx, snapshot)
}

// NewExecutor creates an Executor from a name and a function.
func NewExecutor(name string, fn func(ctx context.Context, snapshot map[string]interface{}) (*Result, error)) Executor {
	return &ExecutorFunc{ExecutorName: name, Fn: fn}
}
