package model

import "fmt"

// StepKind identifies which of the four step shapes a sequence entry takes.
type StepKind int

const (
	KindInvalid StepKind = iota
	KindStandard
	KindParallel
	KindLoop
	KindTerminal
)

func (k StepKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindParallel:
		return "parallel"
	case KindLoop:
		return "loop"
	case KindTerminal:
		return "terminal"
	}
	return "invalid"
}

type (
	// Step is one workflow sequence entry. Exactly one of the four shapes
	// must be populated: Standard (State+Executor), Parallel, Loop or
	// Terminal. The loader rejects documents violating this before any
	// execution begins.
	Step struct {
		// Standard shape
		State      string       `json:"state,omitempty" yaml:"state,omitempty"`
		Executor   string       `json:"executor,omitempty" yaml:"executor,omitempty"`
		Conditions []*Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
		Timeout    string       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		Retry      *Retry       `json:"retry,omitempty" yaml:"retry,omitempty"`
		// OnError designates the recovery workflow entered when the step
		// exhausts its retries.
		OnError *Escalation `json:"onError,omitempty" yaml:"onError,omitempty"`

		// Parallel shape: Standard sub-steps executed concurrently.
		Parallel []*Step `json:"parallel,omitempty" yaml:"parallel,omitempty"`

		// Loop shape
		Loop *LoopSpec `json:"loop,omitempty" yaml:"loop,omitempty"`

		// Terminal shape: state name only, never an executor.
		Terminal string `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	}

	// LoopSpec repeats an inner sequence until a break condition holds or
	// MaxIterations is reached.
	LoopSpec struct {
		StatePrefix     string       `json:"statePrefix" yaml:"statePrefix"`
		Steps           []*Step      `json:"steps" yaml:"steps"`
		MaxIterations   int          `json:"maxIterations" yaml:"maxIterations"`
		BreakConditions []*Condition `json:"breakConditions,omitempty" yaml:"breakConditions,omitempty"`
	}

	// Retry strategy for a Standard step.
	Retry struct {
		Type       string  `json:"type,omitempty" yaml:"type,omitempty"` // fixed, exponential, none
		MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
		Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`
		Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
		MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	}
)

// Kind derives the step shape. KindInvalid is returned when the entry
// matches no shape or more than one.
func (s *Step) Kind() StepKind {
	matched := KindInvalid
	count := 0
	if s.State != "" {
		matched = KindStandard
		count++
	}
	if len(s.Parallel) > 0 {
		matched = KindParallel
		count++
	}
	if s.Loop != nil {
		matched = KindLoop
		count++
	}
	if s.Terminal != "" {
		matched = KindTerminal
		count++
	}
	if count != 1 {
		return KindInvalid
	}
	return matched
}

// EntryState returns the state name the engine enters when this step becomes
// current.
func (s *Step) EntryState() string {
	switch s.Kind() {
	case KindStandard:
		return s.State
	case KindParallel:
		return s.Parallel[0].State
	case KindLoop:
		return fmt.Sprintf("%s_1", s.Loop.StatePrefix)
	case KindTerminal:
		return s.Terminal
	}
	return ""
}

// Escalation names the workflow a run switches to when a condition fails or
// a step exhausts its retries.
func (s *Step) Escalation() *Escalation {
	for _, cond := range s.Conditions {
		if cond.OnFail != nil && cond.OnFail.Workflow != "" {
			return cond.OnFail
		}
	}
	return nil
}

// WithExecutor sets the executor of a Standard step.
func (s *Step) WithExecutor(name string) *Step {
	s.Executor = name
	return s
}

// WithTimeout sets the per-call executor timeout as a duration string.
func (s *Step) WithTimeout(timeout string) *Step {
	s.Timeout = timeout
	return s
}

// WithRetry attaches a retry strategy to the step.
func (s *Step) WithRetry(retry *Retry) *Step {
	s.Retry = retry
	return s
}

// WithCondition appends an advancement condition to the step.
func (s *Step) WithCondition(field, operator string, value interface{}) *Step {
	s.Conditions = append(s.Conditions, &Condition{Field: field, Operator: operator, Value: value})
	return s
}

// Clone creates a deep copy of a step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	clone := &Step{
		State:    s.State,
		Executor: s.Executor,
		Timeout:  s.Timeout,
		Terminal: s.Terminal,
	}
	if s.Retry != nil {
		retry := *s.Retry
		clone.Retry = &retry
	}
	if s.OnError != nil {
		onError := *s.OnError
		clone.OnError = &onError
	}
	if s.Conditions != nil {
		clone.Conditions = make([]*Condition, len(s.Conditions))
		for i, cond := range s.Conditions {
			clone.Conditions[i] = cond.Clone()
		}
	}
	if s.Parallel != nil {
		clone.Parallel = make([]*Step, len(s.Parallel))
		for i, sub := range s.Parallel {
			clone.Parallel[i] = sub.Clone()
		}
	}
	if s.Loop != nil {
		clone.Loop = &LoopSpec{
			StatePrefix:   s.Loop.StatePrefix,
			MaxIterations: s.Loop.MaxIterations,
		}
		if s.Loop.Steps != nil {
			clone.Loop.Steps = make([]*Step, len(s.Loop.Steps))
			for i, inner := range s.Loop.Steps {
				clone.Loop.Steps[i] = inner.Clone()
			}
		}
		if s.Loop.BreakConditions != nil {
			clone.Loop.BreakConditions = make([]*Condition, len(s.Loop.BreakConditions))
			for i, cond := range s.Loop.BreakConditions {
				clone.Loop.BreakConditions[i] = cond.Clone()
			}
		}
	}
	return clone
}
