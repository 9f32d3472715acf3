package model

import (
	"fmt"
	"strings"
	"time"
)

// Workflow represents a named, versioned declarative workflow definition.
// Definitions are created once at load time and are immutable for the
// process lifetime; runs never mutate them.
type Workflow struct {
	// Source provides information about the origin of the workflow
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`

	// Name is the unique identifier for the workflow
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description of the workflow
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Version specifies the workflow version
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Metadata holds free-form workflow-level annotations
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Sequence is the ordered list of steps driving the run
	Sequence []*Step `json:"sequence" yaml:"sequence"`
}

type Source struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Validate performs a best-effort structural validation of the workflow. The
// returned slice is empty when the workflow is sound; otherwise it contains
// the issues a careful reviewer of the document would flag. It verifies only
// static properties and never executes anything.
func (w *Workflow) Validate() []error {
	var issues []error

	if len(w.Sequence) == 0 {
		issues = append(issues, fmt.Errorf("sequence has no entries"))
		return issues
	}

	seen := map[string]string{}
	note := func(state, path string) {
		if prev, ok := seen[state]; ok {
			issues = append(issues, fmt.Errorf("duplicate state %s at %s (first seen at %s)", state, path, prev))
			return
		}
		seen[state] = path
	}

	var checkStandard func(step *Step, path string)
	checkStandard = func(step *Step, path string) {
		note(step.State, path)
		if step.Executor == "" {
			issues = append(issues, fmt.Errorf("state %s at %s has no executor", step.State, path))
		}
		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				issues = append(issues, fmt.Errorf("state %s has invalid timeout: %v", step.State, err))
			}
		}
		if retry := step.Retry; retry != nil {
			if retry.MaxRetries < 0 {
				issues = append(issues, fmt.Errorf("state %s has negative retry limit", step.State))
			}
			if retry.Delay != "" {
				if _, err := time.ParseDuration(retry.Delay); err != nil {
					issues = append(issues, fmt.Errorf("state %s has invalid retry delay: %v", step.State, err))
				}
			}
			if retry.MaxDelay != "" {
				if _, err := time.ParseDuration(retry.MaxDelay); err != nil {
					issues = append(issues, fmt.Errorf("state %s has invalid retry maxDelay: %v", step.State, err))
				}
			}
		}
		issues = append(issues, checkConditions(step.State, step.Conditions)...)
	}

	for i, step := range w.Sequence {
		path := fmt.Sprintf("sequence[%d]", i)
		switch step.Kind() {
		case KindStandard:
			checkStandard(step, path)
		case KindParallel:
			for j, sub := range step.Parallel {
				subPath := fmt.Sprintf("%s.parallel[%d]", path, j)
				if sub.Kind() != KindStandard {
					issues = append(issues, fmt.Errorf("%s: parallel sub-steps must be standard steps", subPath))
					continue
				}
				checkStandard(sub, subPath)
			}
		case KindLoop:
			loop := step.Loop
			if loop.StatePrefix == "" {
				issues = append(issues, fmt.Errorf("%s: loop has no statePrefix", path))
			}
			if loop.MaxIterations <= 0 {
				issues = append(issues, fmt.Errorf("%s: loop maxIterations must be > 0", path))
			}
			if len(loop.Steps) == 0 {
				issues = append(issues, fmt.Errorf("%s: loop has no inner steps", path))
			}
			for j, inner := range loop.Steps {
				innerPath := fmt.Sprintf("%s.loop.steps[%d]", path, j)
				if inner.Kind() != KindStandard {
					issues = append(issues, fmt.Errorf("%s: loop inner steps must be standard steps", innerPath))
					continue
				}
				checkStandard(inner, innerPath)
			}
			issues = append(issues, checkConditions(loop.StatePrefix, loop.BreakConditions)...)
		case KindTerminal:
			note(step.Terminal, path)
			if step.Executor != "" {
				issues = append(issues, fmt.Errorf("%s: terminal state %s must not carry an executor", path, step.Terminal))
			}
		default:
			issues = append(issues, fmt.Errorf("%s: step matches no step shape or more than one", path))
		}
	}
	return issues
}

func checkConditions(state string, conditions []*Condition) []error {
	var issues []error
	for _, cond := range conditions {
		if strings.TrimSpace(cond.Field) == "" {
			issues = append(issues, fmt.Errorf("state %s has a condition with no field", state))
		}
		if cond.Operator != "" && !IsKnownOperator(cond.Operator) {
			issues = append(issues, fmt.Errorf("state %s has unknown condition operator %q", state, cond.Operator))
		}
		if cond.OnFail != nil && cond.OnFail.Workflow == "" {
			issues = append(issues, fmt.Errorf("state %s has an escalation with no target workflow", state))
		}
	}
	return issues
}

// EntryState returns the state the run starts in.
func (w *Workflow) EntryState() string {
	if len(w.Sequence) == 0 {
		return ""
	}
	return w.Sequence[0].EntryState()
}

// StepAt returns the sequence entry at the given index, nil when out of range.
func (w *Workflow) StepAt(index int) *Step {
	if index < 0 || index >= len(w.Sequence) {
		return nil
	}
	return w.Sequence[index]
}

// IndexOf locates the sequence entry owning the supplied state name. Loop
// entries own every state carrying their prefix; parallel entries own each
// declared sub-state. The second return value is false when no entry matches.
func (w *Workflow) IndexOf(state string) (int, bool) {
	for i, step := range w.Sequence {
		switch step.Kind() {
		case KindStandard:
			if step.State == state {
				return i, true
			}
		case KindParallel:
			for _, sub := range step.Parallel {
				if sub.State == state {
					return i, true
				}
			}
		case KindLoop:
			if strings.HasPrefix(state, step.Loop.StatePrefix) {
				return i, true
			}
		case KindTerminal:
			if step.Terminal == state {
				return i, true
			}
		}
	}
	return 0, false
}

// NewWorkflow creates a new workflow with the given name.
func NewWorkflow(name string) *Workflow {
	return &Workflow{Name: name}
}

// WithVersion sets the workflow version.
func (w *Workflow) WithVersion(version string) *Workflow {
	w.Version = version
	return w
}

// WithDescription sets the description of the workflow.
func (w *Workflow) WithDescription(description string) *Workflow {
	w.Description = description
	return w
}

// WithMetadata adds a workflow-level annotation.
func (w *Workflow) WithMetadata(key string, value interface{}) *Workflow {
	if w.Metadata == nil {
		w.Metadata = make(map[string]interface{})
	}
	w.Metadata[key] = value
	return w
}

// NewStep appends a Standard step to the sequence and returns it.
func (w *Workflow) NewStep(state string) *Step {
	step := &Step{State: state}
	w.Sequence = append(w.Sequence, step)
	return step
}

// NewParallel appends a Parallel step composed of the supplied sub-steps.
func (w *Workflow) NewParallel(subSteps ...*Step) *Step {
	step := &Step{Parallel: subSteps}
	w.Sequence = append(w.Sequence, step)
	return step
}

// NewLoop appends a Loop step and returns it.
func (w *Workflow) NewLoop(statePrefix string, maxIterations int, inner ...*Step) *Step {
	step := &Step{Loop: &LoopSpec{StatePrefix: statePrefix, MaxIterations: maxIterations, Steps: inner}}
	w.Sequence = append(w.Sequence, step)
	return step
}

// NewTerminal appends a Terminal step.
func (w *Workflow) NewTerminal(state string) *Step {
	step := &Step{Terminal: state}
	w.Sequence = append(w.Sequence, step)
	return step
}

// Clone creates a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	clone := &Workflow{
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
	}
	if w.Source != nil {
		source := *w.Source
		clone.Source = &source
	}
	if w.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(w.Metadata))
		for k, v := range w.Metadata {
			clone.Metadata[k] = v
		}
	}
	if w.Sequence != nil {
		clone.Sequence = make([]*Step, len(w.Sequence))
		for i, step := range w.Sequence {
			clone.Sequence[i] = step.Clone()
		}
	}
	return clone
}
