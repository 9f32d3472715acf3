// Package event streams run lifecycle notifications over typed queues so
// that external observers can follow workflow progress without touching the
// engine.
package event

import "time"

// Context identifies where in a run an event was emitted.
type Context struct {
	RunID       string `json:"runID"`
	Workflow    string `json:"workflow"`
	State       string `json:"state"`
	Executor    string `json:"executor,omitempty"`
	EventType   string `json:"eventType"`
	TimeTakenMs int    `json:"timeTakenMs,omitempty"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
